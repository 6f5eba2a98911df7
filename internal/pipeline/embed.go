package pipeline

import (
	"context"
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/change"
	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/extract"
)

// embedCodeObjects realizes the Embed step's code-object half (spec.md
// §4.6): objects without a docstring embed on their content
// (NL2CODE_PASSAGE), objects with a non-empty docstring embed on the
// docstring instead (QA_PASSAGE). oldEmbeddings holds the vectors fetched
// for the ids C5 already confirmed are checksum-eligible for reuse —
// objects not in that map still need a fresh embedding.
func (p *Pipeline) embedCodeObjects(ctx context.Context, objects []*extract.CodeObject, oldEmbeddings map[string][]float32) (generated, reused int, err error) {
	reused = change.ApplyReusedEmbeddings(objects, oldEmbeddings)

	var pending []*extract.CodeObject
	for _, o := range objects {
		if o.EmbeddingVector() == nil {
			pending = append(pending, o)
		}
	}
	if len(pending) == 0 {
		return 0, reused, nil
	}

	var docstringGroup, contentGroup []*extract.CodeObject
	for _, o := range pending {
		if strings.TrimSpace(o.Docstring) != "" {
			docstringGroup = append(docstringGroup, o)
		} else {
			contentGroup = append(contentGroup, o)
		}
	}

	if err := p.embedObjectGroup(ctx, contentGroup, InstructionNL2CodePassage, func(o *extract.CodeObject) string { return o.Source }); err != nil {
		return generated, reused, err
	}
	if err := p.embedObjectGroup(ctx, docstringGroup, InstructionQAPassage, func(o *extract.CodeObject) string { return o.Docstring }); err != nil {
		return generated, reused, err
	}

	generated = len(docstringGroup) + len(contentGroup)
	return generated, reused, nil
}

func (p *Pipeline) embedObjectGroup(ctx context.Context, objects []*extract.CodeObject, instruction InstructionType, textOf func(*extract.CodeObject) string) error {
	batchSize := p.provider.BatchSize()
	if batchSize <= 0 {
		batchSize = len(objects)
	}
	for start := 0; start < len(objects); start += batchSize {
		end := start + batchSize
		if end > len(objects) {
			end = len(objects)
		}
		batch := objects[start:end]

		texts := make([]string, len(batch))
		for i, o := range batch {
			texts[i] = textOf(o)
		}

		vectors, err := p.provider.EmbedBatch(ctx, texts, instruction)
		if err != nil {
			return err
		}
		for i, vec := range vectors {
			batch[i].SetEmbedding(vec)
		}
	}
	return nil
}

// embedDocuments embeds every document node on its content with
// DOCUMENT_PASSAGE (spec.md §4.6/§6). Documents have no checksum-reuse
// path: a changed document is always fully reprocessed (matches the
// original's incremental sync, which only special-cases code objects).
func (p *Pipeline) embedDocuments(ctx context.Context, docs []*docchunk.DocumentNode) (generated int, err error) {
	batchSize := p.provider.BatchSize()
	if batchSize <= 0 {
		batchSize = len(docs)
	}
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}
		vectors, err := p.provider.EmbedBatch(ctx, texts, InstructionDocumentPassage)
		if err != nil {
			return generated, err
		}
		for i, vec := range vectors {
			batch[i].Embedding = vec
		}
		generated += len(batch)
	}
	return generated, nil
}
