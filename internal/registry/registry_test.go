package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/pipeline"
)

func fakeReader(states map[string]*pipeline.IndexState) StateReader {
	return func(projectDir string) (*pipeline.IndexState, error) {
		return states[filepath.Base(projectDir)], nil
	}
}

func newTestRegistry(t *testing.T, dirs []string, states map[string]*pipeline.IndexState) *Registry {
	t.Helper()
	dataDir := t.TempDir()
	for _, d := range dirs {
		if err := os.Mkdir(filepath.Join(dataDir, d), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	return NewRegistry(dataDir, fakeReader(states))
}

func TestRegistry_List_SortsByNameCaseInsensitive(t *testing.T) {
	states := map[string]*pipeline.IndexState{
		"proj-a": {ProjectID: "id-a", ProjectName: "zebra"},
		"proj-b": {ProjectID: "id-b", ProjectName: "Apple"},
	}
	r := newTestRegistry(t, []string{"proj-a", "proj-b"}, states)

	got := r.List()
	if len(got) != 2 {
		t.Fatalf("List() = %d entries, want 2", len(got))
	}
	if got[0].Name != "Apple" || got[1].Name != "zebra" {
		t.Fatalf("List() order = [%s, %s], want [Apple, zebra]", got[0].Name, got[1].Name)
	}
}

func TestRegistry_Resolve_ExactID(t *testing.T) {
	states := map[string]*pipeline.IndexState{
		"proj-a": {ProjectID: "id-a", ProjectName: "widget-service"},
	}
	r := newTestRegistry(t, []string{"proj-a"}, states)

	id, ok := r.Resolve("id-a")
	if !ok || id != "id-a" {
		t.Fatalf("Resolve(id-a) = (%q, %v), want (id-a, true)", id, ok)
	}
}

func TestRegistry_Resolve_ExactNamePrefersMostObjects(t *testing.T) {
	states := map[string]*pipeline.IndexState{
		"proj-a": {ProjectID: "id-a", ProjectName: "widget-service", ObjectCount: 10},
		"proj-b": {ProjectID: "id-b", ProjectName: "widget-service", ObjectCount: 200},
	}
	r := newTestRegistry(t, []string{"proj-a", "proj-b"}, states)

	id, ok := r.Resolve("widget-service")
	if !ok || id != "id-b" {
		t.Fatalf("Resolve(widget-service) = (%q, %v), want (id-b, true)", id, ok)
	}
}

func TestRegistry_Resolve_ExactNameTieBrokenByMostRecent(t *testing.T) {
	now := time.Now()
	states := map[string]*pipeline.IndexState{
		"proj-a": {ProjectID: "id-a", ProjectName: "widget-service", ObjectCount: 10, IndexedAt: now.Add(-time.Hour)},
		"proj-b": {ProjectID: "id-b", ProjectName: "widget-service", ObjectCount: 10, IndexedAt: now},
	}
	r := newTestRegistry(t, []string{"proj-a", "proj-b"}, states)

	id, ok := r.Resolve("widget-service")
	if !ok || id != "id-b" {
		t.Fatalf("Resolve(widget-service) = (%q, %v), want (id-b, true)", id, ok)
	}
}

func TestRegistry_Resolve_NoMatch(t *testing.T) {
	r := newTestRegistry(t, []string{}, map[string]*pipeline.IndexState{})

	if _, ok := r.Resolve("missing"); ok {
		t.Fatalf("Resolve(missing) = ok=true, want false")
	}
}

func TestRegistry_Get_ReturnsInfoForResolvedProject(t *testing.T) {
	states := map[string]*pipeline.IndexState{
		"proj-a": {ProjectID: "id-a", ProjectName: "widget-service", RepositoryPath: "/repos/widget"},
	}
	r := newTestRegistry(t, []string{"proj-a"}, states)

	info, ok := r.Get("widget-service")
	if !ok {
		t.Fatalf("Get(widget-service) ok = false, want true")
	}
	if info.RepositoryPath != "/repos/widget" {
		t.Fatalf("Get(widget-service).RepositoryPath = %q, want /repos/widget", info.RepositoryPath)
	}
}

func TestRegistry_Invalidate_ForcesRescan(t *testing.T) {
	dataDir := t.TempDir()
	states := map[string]*pipeline.IndexState{}
	r := NewRegistry(dataDir, fakeReader(states))

	if got := r.List(); len(got) != 0 {
		t.Fatalf("List() before mkdir = %d entries, want 0", len(got))
	}

	if err := os.Mkdir(filepath.Join(dataDir, "proj-a"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	states["proj-a"] = &pipeline.IndexState{ProjectID: "id-a", ProjectName: "widget-service"}

	if got := r.List(); len(got) != 0 {
		t.Fatalf("List() before Invalidate = %d entries, want 0 (cache stale)", len(got))
	}

	r.Invalidate()
	if got := r.List(); len(got) != 1 {
		t.Fatalf("List() after Invalidate = %d entries, want 1", len(got))
	}
}

func TestRegistry_List_MissingDataDirReturnsEmpty(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "does-not-exist"), fakeReader(nil))

	if got := r.List(); len(got) != 0 {
		t.Fatalf("List() = %d entries, want 0", len(got))
	}
}

func TestRegistry_FindSimilar_MatchesByEditDistanceAndSubstring(t *testing.T) {
	states := map[string]*pipeline.IndexState{
		"proj-a": {ProjectID: "id-a", ProjectName: "widget-service"},
		"proj-b": {ProjectID: "id-b", ProjectName: "gadget-service"},
		"proj-c": {ProjectID: "id-c", ProjectName: "totally-unrelated"},
	}
	r := newTestRegistry(t, []string{"proj-a", "proj-b", "proj-c"}, states)

	got := r.FindSimilar("widget-servic", 0.6)
	if len(got) == 0 || got[0].Name != "widget-service" {
		t.Fatalf("FindSimilar top match = %+v, want widget-service first", got)
	}
	for _, info := range got {
		if info.Name == "totally-unrelated" {
			t.Fatalf("FindSimilar matched unrelated project: %+v", got)
		}
	}
}

func TestSimilarityRatio_IdenticalStringsScoreOne(t *testing.T) {
	if got := similarityRatio("widget", "widget"); got != 1.0 {
		t.Fatalf("similarityRatio(widget, widget) = %v, want 1.0", got)
	}
}

func TestSimilarityRatio_CompletelyDifferentScoresLow(t *testing.T) {
	if got := similarityRatio("abc", "xyz"); got > 0.1 {
		t.Fatalf("similarityRatio(abc, xyz) = %v, want near 0", got)
	}
}
