package pipeline

import (
	"context"

	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/extract"
)

// persistObjects upserts code objects (and the chunk's full relationship
// set, attached per spec.md §4.7's "relationships attached to source
// object payload") in batches of batchSize (spec.md §4.6 "Persist").
func (p *Pipeline) persistObjects(ctx context.Context, objects []*extract.CodeObject, relationships []*extract.Relationship) error {
	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	for start := 0; start < len(objects); start += batchSize {
		end := start + batchSize
		if end > len(objects) {
			end = len(objects)
		}
		if err := p.store.AddCodeObjects(ctx, objects[start:end], relationships); err != nil {
			return err
		}
	}
	return nil
}

// persistDocuments upserts document nodes in the same batch size.
func (p *Pipeline) persistDocuments(ctx context.Context, docs []*docchunk.DocumentNode) error {
	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := p.store.AddDocuments(ctx, docs[start:end]); err != nil {
			return err
		}
	}
	return nil
}
