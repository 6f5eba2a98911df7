package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/docchunk"
)

func newDocPipeline() *Pipeline {
	return &Pipeline{
		markdownChunker: docchunk.NewMarkdownChunker(docchunk.DefaultMarkdownOptions()),
		configChunker:   docchunk.NewConfigChunker(docchunk.DefaultConfigOptions()),
		logger:          testLogger(),
	}
}

func TestChunkDocuments_MarkdownStampsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nSome body text.\n"), 0o644))

	p := newDocPipeline()
	nodes := p.chunkDocuments([]scannedFile{
		{FileRef: refFor(path, "README.md"), Language: "markdown"},
	})
	require.NotEmpty(t, nodes)
	for _, n := range nodes {
		assert.Equal(t, path, n.AbsolutePath)
	}
}

func TestChunkDocuments_OnlyStampsCurrentFileNodes(t *testing.T) {
	dirA := t.TempDir()
	pathA := filepath.Join(dirA, "a.md")
	pathB := filepath.Join(dirA, "b.md")
	require.NoError(t, os.WriteFile(pathA, []byte("# A\n\nbody a\n"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("# B\n\nbody b\n"), 0o644))

	p := newDocPipeline()
	nodes := p.chunkDocuments([]scannedFile{
		{FileRef: refFor(pathA, "a.md"), Language: "markdown"},
		{FileRef: refFor(pathB, "b.md"), Language: "markdown"},
	})

	for _, n := range nodes {
		switch n.RelativePath {
		case "a.md":
			assert.Equal(t, pathA, n.AbsolutePath)
		case "b.md":
			assert.Equal(t, pathB, n.AbsolutePath)
		default:
			t.Fatalf("unexpected node for path %q", n.RelativePath)
		}
	}
}

func TestChunkDocuments_UnreadableFileIsSkipped(t *testing.T) {
	p := newDocPipeline()
	nodes := p.chunkDocuments([]scannedFile{
		{FileRef: refFor("/nonexistent/missing.md", "missing.md"), Language: "markdown"},
	})
	assert.Empty(t, nodes)
}

func TestChunkDocuments_UnstructuredConfigFallsBackToMarkdownChunker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Dockerfile")
	require.NoError(t, os.WriteFile(path, []byte("FROM golang:1.25\nRUN go build ./...\n"), 0o644))

	p := newDocPipeline()
	nodes := p.chunkDocuments([]scannedFile{
		{FileRef: refFor(path, "Dockerfile"), Language: "dockerfile"},
	})
	require.NotEmpty(t, nodes)
	assert.Equal(t, path, nodes[0].AbsolutePath)
}
