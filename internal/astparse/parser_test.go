package astparse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amanerrors "github.com/Aman-CERP/amanmcp/internal/errors"
)

func TestParser_ParseGoFile_ReturnsAST(t *testing.T) {
	source := []byte(`package main

func hello() {
	fmt.Println("Hello")
}

func goodbye() {
	fmt.Println("Bye")
}
`)

	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), source, "go")
	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.Equal(t, "go", tree.Language)
	assert.False(t, tree.Partial)
	assert.Equal(t, 1.0, tree.ValidRatio)

	funcNodes := tree.Root.CollectByType("function_declaration")
	assert.Len(t, funcNodes, 2)
}

func TestParser_UnsupportedLanguage_Errors(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	_, err := parser.Parse(context.Background(), []byte("whatever"), "cobol")
	require.Error(t, err)

	var amanErr *amanerrors.AmanError
	require.ErrorAs(t, err, &amanErr)
	assert.Equal(t, amanerrors.ErrCodeUnsupportedLanguage, amanErr.Code)
}

func TestParser_PartialQualityBelowThreshold_Errors(t *testing.T) {
	// Badly malformed Go source: heavy error-node ratio.
	source := []byte(`package main
func ( {{{ ]] not go at all &&& ###
`)

	parser := NewParser()
	defer parser.Close()

	_, err := parser.Parse(context.Background(), source, "go")
	require.Error(t, err)

	var amanErr *amanerrors.AmanError
	require.ErrorAs(t, err, &amanErr)
	assert.Equal(t, amanerrors.ErrCodePartialQualityLow, amanErr.Code)
}

func TestParser_PartialQualityAboveThreshold_ReturnsPartialTree(t *testing.T) {
	// A single malformed trailing statement amid otherwise valid source
	// should still clear the default 0.5 threshold.
	source := []byte(`package main

func hello() {
	fmt.Println("Hello")
}

func goodbye() {
	fmt.Println("Bye"
}
`)

	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), source, "go")
	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.True(t, tree.Partial)
	assert.GreaterOrEqual(t, tree.ValidRatio, defaultPartialThreshold)
}

func TestParser_DisablePartial_RejectsAnyError(t *testing.T) {
	source := []byte(`package main

func hello() {
	fmt.Println("Hello"
}
`)

	parser := NewParserWithRegistry(DefaultRegistry(), Options{DisablePartial: true})
	defer parser.Close()

	_, err := parser.Parse(context.Background(), source, "go")
	require.Error(t, err)

	var amanErr *amanerrors.AmanError
	require.ErrorAs(t, err, &amanErr)
	assert.Equal(t, amanerrors.ErrCodePartialQualityLow, amanErr.Code)
}

func TestParser_IncrementalReuse_SameLanguageAcrossCalls(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	first := []byte(`package main

func hello() {}
`)
	second := []byte(`package main

func hello() {}

func goodbye() {}
`)

	_, err := parser.Parse(context.Background(), first, "go")
	require.NoError(t, err)
	require.NotNil(t, parser.prevTree)

	tree, err := parser.Parse(context.Background(), second, "go")
	require.NoError(t, err)
	funcNodes := tree.Root.CollectByType("function_declaration")
	assert.Len(t, funcNodes, 2)
}

func TestParser_Reset_ClearsIncrementalState(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	_, err := parser.Parse(context.Background(), []byte(`package main

func hello() {}
`), "go")
	require.NoError(t, err)
	require.NotNil(t, parser.prevTree)

	parser.Reset()
	assert.Nil(t, parser.prevTree)
	assert.Empty(t, parser.prevLang)
}

func TestParser_DisableIncremental_NeverCaches(t *testing.T) {
	parser := NewParserWithRegistry(DefaultRegistry(), Options{DisableIncremental: true})
	defer parser.Close()

	_, err := parser.Parse(context.Background(), []byte(`package main

func hello() {}
`), "go")
	require.NoError(t, err)
	assert.Nil(t, parser.prevTree)
}

func TestParser_Timeout_ContextDeadlineExceeded(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()
	time.Sleep(1 * time.Millisecond)

	_, err := parser.Parse(ctx, []byte(`package main

func hello() {}
`), "go")
	require.Error(t, err)

	var amanErr *amanerrors.AmanError
	require.ErrorAs(t, err, &amanErr)
	assert.Equal(t, amanerrors.ErrCodeParseTimeout, amanErr.Code)
}
