// Package retrieve implements C9: the hybrid retriever that executes a
// query end to end — embed, fetch, one-hop graph expansion with
// personalized PageRank, boosting, and a diversity filter (spec.md §4.9).
package retrieve

import (
	"context"

	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/extract"
	"github.com/Aman-CERP/amanmcp/internal/pipeline"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// Store is the slice of the vector store contract (C7) the retriever needs.
type Store interface {
	HybridSearch(ctx context.Context, denseVec []float32, sparseVec store.SparseVector, params store.HybridSearchParams) ([]*store.ScoredPoint, error)
	GetRelationships(ctx context.Context, sourceID string, relType extract.RelationType) ([]*extract.Relationship, error)
	GetCodeObjectsBatch(ctx context.Context, ids []string, withVectors bool) (map[string]*extract.CodeObject, error)
	GetDocumentsBatch(ctx context.Context, ids []string) (map[string]*docchunk.DocumentNode, error)
}

// SparseEncoder produces the query-side sparse vector (C8).
type SparseEncoder interface {
	EncodeQuery(text string) store.SparseVector
}

// Query describes one retrieval request (spec.md §4.9 step 1).
type Query struct {
	Text           string
	Embedding      []float32 // pre-computed; if empty the embedding provider is called
	Instruction    pipeline.InstructionType
	Limit          int
	TypeFilter     string
	LanguageFilter string
	FileFilter     string
	MinScore       float64
}

// Result is one ranked entity returned to the caller (spec.md §4.9's
// SearchResult, flattened to what the core actually needs downstream).
type Result struct {
	ID            string
	Type          string // "code" or "document"
	RelativePath  string
	Name          string
	QualifiedName string
	Language      string
	Kind          string // object kind / node kind, lowercase
	StartLine     int
	EndLine       int
	Content       string

	BaseScore     float64 // hybrid_search score before boosting; 0 for graph-expanded results
	FinalScore    float64
	GraphScore    float64
	GraphExpanded bool

	ParentDocID string // documents only, for the diversity filter
}

// edgeWeights are the relation-type edge weights the graph expansion step
// uses to compute PPR scores (spec.md §4.9 step 3).
var edgeWeights = map[extract.RelationType]float64{
	extract.RelContains:      0.8,
	extract.RelContainedBy:   0.8,
	extract.RelCalls:         0.7,
	extract.RelCalledBy:      0.7,
	extract.RelReferences:    0.6,
	extract.RelReferencedBy:  0.6,
	extract.RelExtends:       0.5,
	extract.RelExtendedBy:    0.5,
	extract.RelImplements:    0.5,
	extract.RelImplementedBy: 0.5,
	extract.RelImports:       0.4,
	extract.RelImportedBy:    0.4,
}

const pprAlpha = 0.85
