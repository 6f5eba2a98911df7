package registry

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/amanmcp/internal/pipeline"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// SQLiteStateReader opens the metadata.db a Collection persists under
// projectDir, reads its IndexState, and closes the store — the default
// StateReader wired at startup (see internal/store's own MetadataStore for
// the schema this reads).
func SQLiteStateReader(projectDir string) (*pipeline.IndexState, error) {
	metadataPath := filepath.Join(projectDir, "metadata.db")
	if _, err := os.Stat(metadataPath); err != nil {
		return nil, nil
	}

	meta, err := store.NewMetadataStore(metadataPath, store.DefaultBM25Config())
	if err != nil {
		return nil, err
	}
	defer func() { _ = meta.Close() }()

	return meta.GetIndexState(context.Background())
}
