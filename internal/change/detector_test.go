package change

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu      sync.Mutex
	entries map[string]*FileChecksum
}

func newMockStore() *mockStore {
	return &mockStore{entries: make(map[string]*FileChecksum)}
}

func (m *mockStore) GetFileChecksum(ctx context.Context, relativePath string) (*FileChecksum, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[relativePath], nil
}

func (m *mockStore) GetFileChecksumsBatch(ctx context.Context, relativePaths []string) (map[string]*FileChecksum, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*FileChecksum, len(relativePaths))
	for _, p := range relativePaths {
		if fc, ok := m.entries[p]; ok {
			out[p] = fc
		}
	}
	return out, nil
}

func (m *mockStore) SetFileChecksum(ctx context.Context, fc *FileChecksum) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[fc.RelativePath] = fc
	return nil
}

type fakeObject struct {
	id        string
	checksum  string
	embedding []float32
}

func (f *fakeObject) ObjectID() string                  { return f.id }
func (f *fakeObject) ObjectChecksum() string             { return f.checksum }
func (f *fakeObject) SetEmbedding(vec []float32)         { f.embedding = vec }
func (f *fakeObject) EmbeddingVector() []float32         { return f.embedding }

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDetector_ShouldSkip_UnchangedFileSkips(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.go", "package a\n")

	store := newMockStore()
	d := NewDetector(store, 0)

	skip, err := d.ShouldSkip(context.Background(), path, "a.go")
	require.NoError(t, err)
	assert.False(t, skip, "no cached checksum yet, should not skip")

	require.NoError(t, UpdateCache(context.Background(), d.store, path, "a.go", []*fakeObject(nil)))

	skip, err = d.ShouldSkip(context.Background(), path, "a.go")
	require.NoError(t, err)
	assert.True(t, skip)
}

func TestDetector_ShouldSkip_ChangedFileDoesNotSkip(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.go", "package a\n")

	store := newMockStore()
	d := NewDetector(store, 0)
	require.NoError(t, UpdateCache(context.Background(), d.store, path, "a.go", []*fakeObject(nil)))

	require.NoError(t, os.WriteFile(path, []byte("package a\n\nfunc F() {}\n"), 0o644))

	skip, err := d.ShouldSkip(context.Background(), path, "a.go")
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestDetector_ShouldSkip_MissingFileErrors(t *testing.T) {
	store := newMockStore()
	d := NewDetector(store, 0)
	_, err := d.ShouldSkip(context.Background(), "/nonexistent/path.go", "path.go")
	assert.Error(t, err)
}

func TestDetector_Partition_ClassifiesChangedAndUnchanged(t *testing.T) {
	dir := t.TempDir()
	pathA := writeTempFile(t, dir, "a.go", "package a\n")
	pathB := writeTempFile(t, dir, "b.go", "package b\n")

	store := newMockStore()
	d := NewDetector(store, 0)

	require.NoError(t, UpdateCache(context.Background(), d.store, pathA, "a.go", []*fakeObject(nil)))

	files := []FileRef{
		{AbsolutePath: pathA, RelativePath: "a.go"},
		{AbsolutePath: pathB, RelativePath: "b.go"},
	}
	changed, unchanged, err := d.Partition(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, unchanged, 1)
	require.Len(t, changed, 1)
	assert.Equal(t, "a.go", unchanged[0].RelativePath)
	assert.Equal(t, "b.go", changed[0].RelativePath)
}

func TestReuseCandidates_MatchesOnIDAndChecksum(t *testing.T) {
	cached := &FileChecksum{ObjectChecksums: map[string]string{
		"obj1": "sumA",
		"obj2": "sumB",
	}}
	objs := []*fakeObject{
		{id: "obj1", checksum: "sumA"},
		{id: "obj2", checksum: "changed"},
		{id: "obj3", checksum: "sumC"},
	}
	ids := ReuseCandidates(objs, cached)
	assert.Equal(t, []string{"obj1"}, ids)
}

func TestApplyReusedEmbeddings_CopiesVectorOntoMatchingObjects(t *testing.T) {
	objs := []*fakeObject{
		{id: "obj1"},
		{id: "obj2"},
	}
	embeddings := map[string][]float32{"obj1": {0.1, 0.2}}

	reused := ApplyReusedEmbeddings(objs, embeddings)
	assert.Equal(t, 1, reused)
	assert.Equal(t, []float32{0.1, 0.2}, objs[0].EmbeddingVector())
	assert.Nil(t, objs[1].EmbeddingVector())
}

func TestDetectDeletions_ReturnsIDsAbsentFromNewObjects(t *testing.T) {
	cached := &FileChecksum{ObjectChecksums: map[string]string{
		"obj1": "sumA",
		"obj2": "sumB",
	}}
	objs := []*fakeObject{{id: "obj1", checksum: "sumA"}}

	deleted := DetectDeletions(objs, cached)
	assert.Equal(t, []string{"obj2"}, deleted)
}

func TestUpdateCache_WritesFileAndObjectChecksums(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.go", "package a\n")
	store := newMockStore()

	objs := []*fakeObject{{id: "obj1", checksum: "sumA"}}
	require.NoError(t, UpdateCache(context.Background(), store, path, "a.go", objs))

	fc, err := store.GetFileChecksum(context.Background(), "a.go")
	require.NoError(t, err)
	require.NotNil(t, fc)
	assert.Equal(t, "sumA", fc.ObjectChecksums["obj1"])
}
