// Package pipeline implements C6: the indexing pipeline that drives full
// and incremental builds through the state machine spec.md §4.6 describes —
// Scan, then for each fixed-size chunk of files Extract → Embed → Persist →
// Barrier, then Finalize.
package pipeline

import (
	"context"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/change"
	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/extract"
)

// InstructionType selects how the embedding provider realizes a query or
// passage instruction (spec.md §6 "Embedding provider contract").
type InstructionType string

const (
	InstructionNL2CodeQuery     InstructionType = "NL2CODE_QUERY"
	InstructionNL2CodePassage   InstructionType = "NL2CODE_PASSAGE"
	InstructionCode2CodeQuery   InstructionType = "CODE2CODE_QUERY"
	InstructionCode2CodePassage InstructionType = "CODE2CODE_PASSAGE"
	InstructionQAQuery          InstructionType = "QA_QUERY"
	InstructionQAPassage        InstructionType = "QA_PASSAGE"
	InstructionDocumentPassage  InstructionType = "DOCUMENT_PASSAGE"
)

// EmbeddingProvider is the external contract spec.md §6 describes. The core
// supplies the instruction type; the provider is free to realize it as a
// text prefix or another mechanism.
type EmbeddingProvider interface {
	Initialize(ctx context.Context) error
	Cleanup(ctx context.Context) error
	EmbedBatch(ctx context.Context, texts []string, instruction InstructionType) ([][]float32, error)
	BatchSize() int
	Dimension() int
}

// TranslationProvider is the optional external contract for the Translate
// pipeline step (spec.md §6).
type TranslationProvider interface {
	Translate(ctx context.Context, text, srcLang, tgtLang string) (string, error)
	BatchSize() int
}

// IndexState is the persisted run summary spec.md §4.6 "Finalize" and §6
// "Persisted state layout" describe, stored under state key "index_state".
// ProjectID/ProjectName/RepositoryPath carry the project identity spec.md
// §3's IndexState names; C10 (internal/registry) resolves project name ↔
// id by reading these fields back out of every project's persisted state.
type IndexState struct {
	ProjectID      string
	ProjectName    string
	RepositoryPath string

	CommitHash    string
	IndexedAt     time.Time
	FileCount     int
	ObjectCount   int
	DocumentCount int
	Languages     []string
	SchemaVersion int
	Status        string
}

const schemaVersion = 1

// Store is the narrow slice of the vector store contract (C7, spec.md
// §4.7) the pipeline needs to drive a run. It embeds change.Store so C5's
// file-level skip/partition logic works directly against it.
type Store interface {
	change.Store

	AddCodeObjects(ctx context.Context, objects []*extract.CodeObject, relationships []*extract.Relationship) error
	AddDocuments(ctx context.Context, docs []*docchunk.DocumentNode) error
	DeleteByFile(ctx context.Context, relativePath string) (int, error)
	Delete(ctx context.Context, ids []string) error

	GetCodeObjectsBatch(ctx context.Context, ids []string, withVectors bool) (map[string]*extract.CodeObject, error)

	GetIndexState(ctx context.Context) (*IndexState, error)
	UpdateIndexState(ctx context.Context, state *IndexState) error
}

// RunResult summarizes one pipeline run (spec.md §4.6's per-chunk counters
// rolled up across the whole run).
type RunResult struct {
	FilesScanned        int
	CodeFiles           int
	DocumentFiles       int
	ObjectsExtracted    int
	DocumentsExtracted  int
	RelationshipsCount  int
	EmbeddingsGenerated int
	EmbeddingsReused    int
	ObjectsDeleted      int
	Duration            time.Duration
	State               *IndexState
}

// chunkStats accumulates per-chunk counters during a run; RunResult sums
// these across every chunk processed.
type chunkStats struct {
	objects       int
	documents     int
	relationships int
	generated     int
	reused        int
	deleted       int
}
