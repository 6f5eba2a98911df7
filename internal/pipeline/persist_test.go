package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/extract"
)

func TestPersistObjects_BatchesAtConfiguredSize(t *testing.T) {
	store := newFakeStore()
	p := &Pipeline{store: store, cfg: config.IndexingConfig{BatchSize: 2}}

	objects := []*extract.CodeObject{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}
	rels := []*extract.Relationship{{ID: "r1"}}

	require.NoError(t, p.persistObjects(context.Background(), objects, rels))
	assert.Len(t, store.objects, 3)
	assert.Equal(t, rels, store.relationships)
}

func TestPersistObjects_FallsBackToDefaultBatchSize(t *testing.T) {
	store := newFakeStore()
	p := &Pipeline{store: store, cfg: config.IndexingConfig{}}

	objects := []*extract.CodeObject{{ID: "a"}}
	require.NoError(t, p.persistObjects(context.Background(), objects, nil))
	assert.Len(t, store.objects, 1)
}

func TestPersistDocuments_Batches(t *testing.T) {
	store := newFakeStore()
	p := &Pipeline{store: store, cfg: config.IndexingConfig{BatchSize: 1}}

	docs := []*docchunk.DocumentNode{{ID: "d1"}, {ID: "d2"}}
	require.NoError(t, p.persistDocuments(context.Background(), docs))
	assert.Len(t, store.documents, 2)
}
