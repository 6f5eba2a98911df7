// Package registry implements C10: the index state record and project
// name ↔ id resolution spec.md §3's IndexState and §4's C10 component
// describe, built over whatever projects have a persisted IndexState
// under the registry's data directory.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/pipeline"
)

// Info is one registered project's identity and index summary.
type Info struct {
	ID             string
	Name           string
	RepositoryPath string
	LastIndexed    time.Time
	TotalFiles     int
	TotalObjects   int
}

// StateReader reads the persisted IndexState for one project directory
// under the registry's data root, returning (nil, nil) if the directory
// holds no project.
type StateReader func(projectDir string) (*pipeline.IndexState, error)

// Registry resolves project names and ids against every project found
// under dataDir, caching the scan until Invalidate is called.
type Registry struct {
	mu        sync.Mutex
	dataDir   string
	readState StateReader
	cache     map[string]*Info
}

// NewRegistry builds a Registry over dataDir, using readState to load each
// project subdirectory's IndexState.
func NewRegistry(dataDir string, readState StateReader) *Registry {
	return &Registry{dataDir: dataDir, readState: readState}
}

// Invalidate clears the cached project listing so the next call re-scans
// the data directory.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = nil
}

func (r *Registry) load() (map[string]*Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache != nil {
		return r.cache, nil
	}

	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			r.cache = map[string]*Info{}
			return r.cache, nil
		}
		return nil, fmt.Errorf("registry: read data dir: %w", err)
	}

	projects := make(map[string]*Info, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projectDir := filepath.Join(r.dataDir, entry.Name())
		state, err := r.readState(projectDir)
		if err != nil || state == nil {
			continue
		}

		id := state.ProjectID
		if id == "" {
			id = entry.Name()
		}
		name := state.ProjectName
		if name == "" {
			name = entry.Name()
		}

		projects[id] = &Info{
			ID:             id,
			Name:           name,
			RepositoryPath: state.RepositoryPath,
			LastIndexed:    state.IndexedAt,
			TotalFiles:     state.FileCount,
			TotalObjects:   state.ObjectCount,
		}
	}

	r.cache = projects
	return projects, nil
}

// Resolve maps a project name or id to its canonical id. Resolution order:
// exact id match, then exact case-insensitive name match — ties broken by
// highest object count, then most recently indexed.
func (r *Registry) Resolve(project string) (string, bool) {
	projects, err := r.load()
	if err != nil {
		return "", false
	}
	if _, ok := projects[project]; ok {
		return project, true
	}

	projectLower := strings.ToLower(project)
	var best *Info
	for _, info := range projects {
		if strings.ToLower(info.Name) != projectLower {
			continue
		}
		if best == nil ||
			info.TotalObjects > best.TotalObjects ||
			(info.TotalObjects == best.TotalObjects && info.LastIndexed.After(best.LastIndexed)) {
			best = info
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

// Get resolves project (name or id) and returns its Info.
func (r *Registry) Get(project string) (*Info, bool) {
	id, ok := r.Resolve(project)
	if !ok {
		return nil, false
	}
	projects, err := r.load()
	if err != nil {
		return nil, false
	}
	info, ok := projects[id]
	return info, ok
}

// List returns every registered project sorted by name (case-insensitive).
func (r *Registry) List() []*Info {
	projects, err := r.load()
	if err != nil {
		return nil
	}
	out := make([]*Info, 0, len(projects))
	for _, info := range projects {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}
