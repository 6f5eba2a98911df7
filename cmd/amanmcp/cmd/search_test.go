package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCmd_RequiresIndex(t *testing.T) {
	tmpDir := t.TempDir()

	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"search", "test query"})

	oldDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	defer func() { _ = os.Chdir(oldDir) }()

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"search"})

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)

	err := rootCmd.Execute()

	require.Error(t, err)
}

// buildSearchableProject indexes a small static-embedder project and returns its directory.
func buildSearchableProject(t *testing.T) string {
	t.Helper()

	testDir := t.TempDir()
	createTestProject(t, testDir)

	indexCmd := NewRootCmd()
	indexCmd.SetOut(new(bytes.Buffer))
	indexCmd.SetErr(new(bytes.Buffer))
	indexCmd.SetArgs([]string{"index", testDir})
	require.NoError(t, indexCmd.Execute())

	return testDir
}

func TestSearchCmd_WithIndex_ReturnsResults(t *testing.T) {
	testDir := buildSearchableProject(t)

	oldDir, _ := os.Getwd()
	_ = os.Chdir(testDir)
	defer func() { _ = os.Chdir(oldDir) }()

	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "helper", "--bm25-only"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "main.go")
}

func TestSearchCmd_FormatText_ShowsScore(t *testing.T) {
	testDir := buildSearchableProject(t)

	oldDir, _ := os.Getwd()
	_ = os.Chdir(testDir)
	defer func() { _ = os.Chdir(oldDir) }()

	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "helper", "--format", "text", "--bm25-only"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "main.go")
	assert.Regexp(t, `score: \d`, output)
}

func TestSearchCmd_FormatJSON_ValidJSON(t *testing.T) {
	testDir := buildSearchableProject(t)

	oldDir, _ := os.Getwd()
	_ = os.Chdir(testDir)
	defer func() { _ = os.Chdir(oldDir) }()

	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "helper", "--format", "json", "--bm25-only"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "{")
	assert.Contains(t, output, "main.go")
}

func TestSearchCmd_LimitFlag(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	limitFlag := searchCmd.Flags().Lookup("limit")
	assert.NotNil(t, limitFlag)
	assert.Equal(t, "10", limitFlag.DefValue)
}

func TestSearchCmd_TypeFlag(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	typeFlag := searchCmd.Flags().Lookup("type")
	assert.NotNil(t, typeFlag)
	assert.Equal(t, "all", typeFlag.DefValue)
}

func TestSearchCmd_FormatFlag(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	formatFlag := searchCmd.Flags().Lookup("format")
	assert.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestSearchCmd_BM25OnlyFlag(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	bm25OnlyFlag := searchCmd.Flags().Lookup("bm25-only")
	assert.NotNil(t, bm25OnlyFlag, "should have --bm25-only flag")
	assert.Equal(t, "false", bm25OnlyFlag.DefValue, "default should be false")
}

func TestSearchCmd_NoResults_ShowsMessage(t *testing.T) {
	testDir := buildSearchableProject(t)

	oldDir, _ := os.Getwd()
	_ = os.Chdir(testDir)
	defer func() { _ = os.Chdir(oldDir) }()

	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "nonexistent_xyz_123", "--bm25-only"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "No results")
}

func TestSearchCmd_TypeDocsFilter(t *testing.T) {
	testDir := t.TempDir()
	createTestProjectWithMarkdown(t, testDir)

	indexCmd := NewRootCmd()
	indexCmd.SetOut(new(bytes.Buffer))
	indexCmd.SetErr(new(bytes.Buffer))
	indexCmd.SetArgs([]string{"index", testDir})
	require.NoError(t, indexCmd.Execute())

	oldDir, _ := os.Getwd()
	_ = os.Chdir(testDir)
	defer func() { _ = os.Chdir(oldDir) }()

	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "overview", "--type", "docs", "--bm25-only"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "README.md")
}
