package change

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanmcp/internal/identity"
)

// DefaultWorkers is the bounded worker pool size spec.md §4.5 names for
// batched file-checksum calculation.
const DefaultWorkers = 8

// Detector implements the two-level checksum optimizer (spec.md §4.5):
// file-level skip detection and object-level embedding reuse.
type Detector struct {
	store   Store
	workers int
}

// NewDetector constructs a Detector. workers <= 0 falls back to DefaultWorkers.
func NewDetector(store Store, workers int) *Detector {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Detector{store: store, workers: workers}
}

// ShouldSkip reports whether absolutePath's whole-file checksum matches the
// cached entry for relativePath. I/O or hash errors are reported but never
// cause a skip: the caller processes the file normally (spec.md §4.1/§4.5).
func (d *Detector) ShouldSkip(ctx context.Context, absolutePath, relativePath string) (bool, error) {
	current, err := identity.FileChecksum(absolutePath)
	if err != nil {
		return false, err
	}
	cached, err := d.store.GetFileChecksum(ctx, relativePath)
	if err != nil {
		return false, err
	}
	if cached == nil {
		return false, nil
	}
	return cached.FileChecksum == current, nil
}

// FileRef pairs a file's absolute path (for hashing) with its
// repository-relative path (the checksum cache key).
type FileRef struct {
	AbsolutePath string
	RelativePath string
}

// Partition computes checksums for every file in parallel over a bounded
// worker pool and classifies each as changed or unchanged against one
// batched cache lookup (spec.md §4.5 "Batched file check"). A checksum
// failure is always treated as changed.
func (d *Detector) Partition(ctx context.Context, files []FileRef) (changed, unchanged []FileRef, err error) {
	if len(files) == 0 {
		return nil, nil, nil
	}

	current := make(map[string]string, len(files))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, d.workers)

	for _, f := range files {
		f := f
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}
			sum, ferr := identity.FileChecksum(f.AbsolutePath)
			if ferr != nil {
				slog.Warn("change: failed to checksum file", slog.String("path", f.AbsolutePath), slog.String("error", ferr.Error()))
				return nil
			}
			mu.Lock()
			current[f.RelativePath] = sum
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.RelativePath
	}
	cached, err := d.store.GetFileChecksumsBatch(ctx, paths)
	if err != nil {
		return nil, nil, err
	}

	for _, f := range files {
		sum, ok := current[f.RelativePath]
		if !ok {
			changed = append(changed, f)
			continue
		}
		cachedEntry, ok := cached[f.RelativePath]
		if ok && cachedEntry.FileChecksum == sum {
			unchanged = append(unchanged, f)
			continue
		}
		changed = append(changed, f)
	}
	return changed, unchanged, nil
}

// ReuseCandidates compares each newly extracted object's checksum against
// the cached object-checksum map and returns the ids of those unchanged
// (spec.md §4.5 "Object level"). The caller (C6) batch-fetches the
// previous embeddings for exactly these ids and applies them with
// ApplyReusedEmbeddings — the checksum cache itself never stores vectors.
func ReuseCandidates[T Object](newObjects []T, cached *FileChecksum) []string {
	if cached == nil || len(cached.ObjectChecksums) == 0 {
		return nil
	}
	var ids []string
	for _, obj := range newObjects {
		oldChecksum, ok := cached.ObjectChecksums[obj.ObjectID()]
		if ok && oldChecksum == obj.ObjectChecksum() {
			ids = append(ids, obj.ObjectID())
		}
	}
	return ids
}

// ApplyReusedEmbeddings copies previously computed embeddings onto the
// matching new objects and returns how many were applied.
func ApplyReusedEmbeddings[T Object](newObjects []T, embeddings map[string][]float32) (reused int) {
	for _, obj := range newObjects {
		vec, ok := embeddings[obj.ObjectID()]
		if !ok || len(vec) == 0 {
			continue
		}
		obj.SetEmbedding(vec)
		reused++
	}
	return reused
}

// DetectDeletions returns every deterministic id present in the cached
// mapping but absent from the newly extracted objects (spec.md §4.5
// "Deletion detection").
func DetectDeletions[T Object](newObjects []T, cached *FileChecksum) []string {
	if cached == nil {
		return nil
	}
	present := make(map[string]bool, len(newObjects))
	for _, obj := range newObjects {
		present[obj.ObjectID()] = true
	}
	var deleted []string
	for id := range cached.ObjectChecksums {
		if !present[id] {
			deleted = append(deleted, id)
		}
	}
	return deleted
}

// UpdateCache atomically rewrites the checksum cache entry for a file
// after successful extraction: new whole-file checksum, new modification
// time, new object-id-to-checksum map (spec.md §4.5 "Cache update").
//
// A free function rather than a Detector method: Go methods cannot carry
// their own type parameters, and this needs one to accept any concrete
// Object implementation without the caller boxing into an interface slice.
func UpdateCache[T Object](ctx context.Context, store Store, absolutePath, relativePath string, objects []T) error {
	sum, err := identity.FileChecksum(absolutePath)
	if err != nil {
		return err
	}
	objChecksums := make(map[string]string, len(objects))
	for _, obj := range objects {
		objChecksums[obj.ObjectID()] = obj.ObjectChecksum()
	}
	return store.SetFileChecksum(ctx, &FileChecksum{
		RelativePath:    relativePath,
		FileChecksum:    sum,
		LastModified:    time.Now(),
		ObjectChecksums: objChecksums,
	})
}
