// Package embedprovider adapts internal/embed's Embedder interface (the
// teacher's Ollama/MLX/static embedding backends) to the
// pipeline.EmbeddingProvider contract spec.md §6 describes, realizing each
// instruction type as a text prefix per that contract's own wording.
package embedprovider

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/amanmcp/internal/embed"
	"github.com/Aman-CERP/amanmcp/internal/pipeline"
)

// instructionPrefixes maps each recognized instruction type to the prefix
// text prepended before embedding (spec.md §6: "the provider is free to
// realize it as a text prefix or another mechanism" — this provider picks
// the prefix mechanism).
var instructionPrefixes = map[pipeline.InstructionType]string{
	pipeline.InstructionNL2CodeQuery:     "Represent this query for retrieving relevant code: ",
	pipeline.InstructionNL2CodePassage:   "Represent this code passage for retrieval: ",
	pipeline.InstructionCode2CodeQuery:   "Represent this code for retrieving similar code: ",
	pipeline.InstructionCode2CodePassage: "Represent this code passage: ",
	pipeline.InstructionQAQuery:          "Represent this question for retrieving supporting documents: ",
	pipeline.InstructionQAPassage:        "Represent this passage for answering questions: ",
	pipeline.InstructionDocumentPassage:  "Represent this document passage: ",
}

// Provider adapts an embed.Embedder to pipeline.EmbeddingProvider.
type Provider struct {
	embedder  embed.Embedder
	batchSize int
}

// New wraps embedder, using batchSize for BatchSize() (falling back to
// embed.DefaultBatchSize when batchSize <= 0).
func New(embedder embed.Embedder, batchSize int) *Provider {
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}
	return &Provider{embedder: embedder, batchSize: batchSize}
}

// Initialize checks that the underlying embedder is reachable.
func (p *Provider) Initialize(ctx context.Context) error {
	if !p.embedder.Available(ctx) {
		return fmt.Errorf("embedprovider: embedder %s not available", p.embedder.ModelName())
	}
	return nil
}

// Cleanup releases the underlying embedder's resources.
func (p *Provider) Cleanup(ctx context.Context) error {
	return p.embedder.Close()
}

// EmbedBatch prefixes each text per instruction and delegates to the
// underlying embedder's batch call.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string, instruction pipeline.InstructionType) ([][]float32, error) {
	prefix := instructionPrefixes[instruction]
	prefixed := texts
	if prefix != "" {
		prefixed = make([]string, len(texts))
		for i, t := range texts {
			prefixed[i] = prefix + t
		}
	}
	return p.embedder.EmbedBatch(ctx, prefixed)
}

// BatchSize returns the configured batch size.
func (p *Provider) BatchSize() int {
	return p.batchSize
}

// Dimension returns the underlying embedder's vector dimension.
func (p *Provider) Dimension() int {
	return p.embedder.Dimensions()
}
