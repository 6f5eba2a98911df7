// Package docchunk implements C4: splitting markdown and structured
// configuration files into bounded, metadata-rich document nodes.
package docchunk

import "github.com/Aman-CERP/amanmcp/internal/identity"

// NodeKind is the DocumentNode kind tag (spec.md §3).
type NodeKind string

const (
	KindMarkdown NodeKind = "markdown"
	KindConfig   NodeKind = "config"
	KindComment  NodeKind = "comment"
	KindDocstring NodeKind = "docstring"
)

// RelatedCode is a code reference extracted from prose: an inline
// backtick expression, a fenced code block, or a markdown link that
// points at a source file.
type RelatedCode struct {
	Content  string
	Language string
	IsLink   bool
}

// DocumentNode is a bounded chunk of prose or configuration (spec.md §3).
type DocumentNode struct {
	ID           string
	AbsolutePath string
	RelativePath string
	Kind         NodeKind
	Content      string
	Checksum     string
	ChunkIndex   int
	TotalChunks  int
	ParentID     string
	Title        string
	StartLine    int
	EndLine      int
	Language     string
	RelatedCode  []RelatedCode

	// Config-specific fields, populated only for NodeKind == KindConfig.
	FlattenedKeys []string
	Format        string
	EnvRefs       []string
	NestingDepth  int
	Oversized     bool

	Embedding []float32
}

func newNode(relativePath string, kind NodeKind, chunkIndex int, content string) *DocumentNode {
	return &DocumentNode{
		ID:           identity.DocID(relativePath, string(kind), chunkIndex),
		RelativePath: relativePath,
		Kind:         kind,
		Content:      content,
		Checksum:     identity.ContentChecksum([]byte(content)),
		ChunkIndex:   chunkIndex,
	}
}
