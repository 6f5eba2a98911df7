package bm25f

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/extract"
)

func TestEncoder_EncodeCodeObject_WeightsNameFieldAboveFilePath(t *testing.T) {
	e := NewEncoder(DefaultConfig())

	obj := &extract.CodeObject{
		Name:         "parseConfig",
		RelativePath: "internal/config/parse.go",
		Source:       "func parseConfig() {}",
	}
	vec := e.EncodeCodeObject(obj)
	require.NotEmpty(t, vec.Indices)
	require.Equal(t, len(vec.Indices), len(vec.Values))

	idxByValue := make(map[uint32]float32)
	for i, idx := range vec.Indices {
		idxByValue[idx] = vec.Values[i]
	}

	nameWeight := idxByValue[hashTerm("parse")]
	pathWeight := idxByValue[hashTerm("internal")]
	assert.Greater(t, nameWeight, pathWeight, "name-field terms should score above path-only terms")
}

func TestEncoder_EncodeCodeObject_EmptyObjectReturnsEmptyVector(t *testing.T) {
	e := NewEncoder(DefaultConfig())
	vec := e.EncodeCodeObject(&extract.CodeObject{})
	assert.Empty(t, vec.Indices)
}

func TestEncoder_EncodeDocument_ProducesVector(t *testing.T) {
	e := NewEncoder(DefaultConfig())
	doc := &docchunk.DocumentNode{
		Title:        "Getting Started",
		Content:      "Install the CLI and run the indexer.",
		RelativePath: "README.md",
	}
	vec := e.EncodeDocument(doc)
	assert.NotEmpty(t, vec.Indices)
	assert.Equal(t, len(vec.Indices), len(vec.Values))
}

func TestEncoder_EncodeCodeObject_HashIsStableAcrossCalls(t *testing.T) {
	e := NewEncoder(DefaultConfig())
	obj := &extract.CodeObject{Name: "Foo", Source: "func Foo() {}"}

	v1 := e.EncodeCodeObject(obj)
	v2 := e.EncodeCodeObject(obj)
	assert.ElementsMatch(t, v1.Indices, v2.Indices)
}
