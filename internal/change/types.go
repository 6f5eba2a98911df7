// Package change implements C5: the two-level checksum optimizer that
// decides which files need re-extraction and which code objects can
// reuse a previously computed embedding.
package change

import (
	"context"
	"time"
)

// FileChecksum is the per-file cache entry spec.md §3 describes: a
// whole-file checksum plus a map from each object's deterministic id to
// its own content checksum, so object-level reuse can be decided without
// re-reading the file.
type FileChecksum struct {
	RelativePath    string
	FileChecksum    string
	LastModified    time.Time
	ObjectChecksums map[string]string
}

// Store is the narrow slice of the vector store contract (C7, spec.md
// §4.7) the change detector needs: batched lookup and atomic update of
// cached file checksums. The full store implements this.
type Store interface {
	GetFileChecksum(ctx context.Context, relativePath string) (*FileChecksum, error)
	GetFileChecksumsBatch(ctx context.Context, relativePaths []string) (map[string]*FileChecksum, error)
	SetFileChecksum(ctx context.Context, fc *FileChecksum) error
}

// Object is the minimal shape the comparator needs from a CodeObject:
// its deterministic id, its content checksum, and its embedding slot.
// internal/extract.CodeObject satisfies this.
type Object interface {
	ObjectID() string
	ObjectChecksum() string
	SetEmbedding(vec []float32)
	EmbeddingVector() []float32
}
