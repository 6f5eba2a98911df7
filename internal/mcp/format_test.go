package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/amanmcp/internal/retrieve"
)

func TestFormatSearchResults_Basic(t *testing.T) {
	results := []*retrieve.Result{
		{
			RelativePath: "internal/auth/handler.go",
			StartLine:    42,
			EndLine:      78,
			Content:      "func AuthMiddleware() {}",
			Language:     "go",
			Name:         "AuthMiddleware",
			Kind:         "function",
			FinalScore:   0.95,
		},
	}

	markdown := FormatSearchResults("authentication", results)

	assert.Contains(t, markdown, "## Search Results")
	assert.Contains(t, markdown, `"authentication"`)
	assert.Contains(t, markdown, "Found 1 result")
	assert.Contains(t, markdown, "internal/auth/handler.go:42-78")
	assert.Contains(t, markdown, "score: 0.95")
	assert.Contains(t, markdown, "```go")
	assert.Contains(t, markdown, "`AuthMiddleware`")
}

func TestFormatSearchResults_MultipleResults(t *testing.T) {
	results := []*retrieve.Result{
		{RelativePath: "file1.go", StartLine: 10, EndLine: 20, Content: "func First() {}", Language: "go", FinalScore: 0.9},
		{RelativePath: "file2.go", StartLine: 30, EndLine: 40, Content: "func Second() {}", Language: "go", FinalScore: 0.8},
	}

	markdown := FormatSearchResults("test", results)

	assert.Contains(t, markdown, "Found 2 results")
	assert.Contains(t, markdown, "file1.go:10-20")
	assert.Contains(t, markdown, "file2.go:30-40")
	assert.Contains(t, markdown, "### 1.")
	assert.Contains(t, markdown, "### 2.")
}

func TestFormatSearchResults_EmptyResults(t *testing.T) {
	results := []*retrieve.Result{}

	markdown := FormatSearchResults("xyznonexistent", results)

	assert.Contains(t, markdown, "No results found")
	assert.Contains(t, markdown, "xyznonexistent")
	assert.NotContains(t, markdown, "###")
}

func TestFormatSearchResults_NilEntry(t *testing.T) {
	results := []*retrieve.Result{nil}

	markdown := FormatSearchResults("test", results)

	assert.Contains(t, markdown, "No results found")
}

func TestFormatCodeResults_WithLanguageFilter(t *testing.T) {
	results := []*retrieve.Result{
		{
			RelativePath: "handler.go",
			StartLine:    10,
			EndLine:      25,
			Content:      "func Handle() {\n\t// implementation\n}",
			Language:     "go",
			Name:         "Handle",
			Kind:         "function",
			FinalScore:   0.92,
		},
	}

	markdown := FormatCodeResults("handler", results, "go")

	assert.Contains(t, markdown, "## Code Search Results")
	assert.Contains(t, markdown, "Language filter: `go`")
	assert.Contains(t, markdown, "```go")
	assert.Contains(t, markdown, "func Handle()")
}

func TestFormatCodeResults_NoLanguageFilter(t *testing.T) {
	results := []*retrieve.Result{
		{RelativePath: "handler.go", StartLine: 10, EndLine: 25, Content: "func Handle() {}", Language: "go", FinalScore: 0.92},
	}

	markdown := FormatCodeResults("handler", results, "")

	assert.Contains(t, markdown, "## Code Search Results")
	assert.NotContains(t, markdown, "Language filter:")
}

func TestFormatCodeResults_EmptyResults(t *testing.T) {
	results := []*retrieve.Result{}

	markdown := FormatCodeResults("handler", results, "python")

	assert.Contains(t, markdown, "No code results found")
	assert.Contains(t, markdown, "in python files")
}

func TestFormatDocsResults_PreservesMarkdown(t *testing.T) {
	results := []*retrieve.Result{
		{
			RelativePath: "docs/installation.md",
			Content:      "## Installation\n\nRun `go install`...",
			Language:     "markdown",
			FinalScore:   0.88,
		},
	}

	markdown := FormatDocsResults("installation", results)

	assert.Contains(t, markdown, "## Documentation Results")
	assert.Contains(t, markdown, "docs/installation.md")
	assert.Contains(t, markdown, "## Installation")
	assert.Contains(t, markdown, "Run `go install`")
	assert.Contains(t, markdown, "---")
}

func TestFormatDocsResults_NonMarkdown(t *testing.T) {
	results := []*retrieve.Result{
		{RelativePath: "README.txt", Content: "This is plain text documentation.", Language: "text", FinalScore: 0.75},
	}

	markdown := FormatDocsResults("readme", results)

	assert.Contains(t, markdown, "```")
	assert.Contains(t, markdown, "This is plain text documentation.")
}

func TestFormatDocsResults_Empty(t *testing.T) {
	results := []*retrieve.Result{}

	markdown := FormatDocsResults("nonexistent", results)

	assert.Contains(t, markdown, "No documentation found")
	assert.Contains(t, markdown, "nonexistent")
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		defaultVal int
		min        int
		max        int
		want       int
	}{
		{"zero uses default", 0, 10, 1, 50, 10},
		{"negative uses default", -5, 10, 1, 50, 10},
		{"above max clamps to max", 100, 10, 1, 50, 50},
		{"valid value unchanged", 25, 10, 1, 50, 25},
		{"at min boundary", 1, 10, 1, 50, 1},
		{"at max boundary", 50, 10, 1, 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampLimit(tt.limit, tt.defaultVal, tt.min, tt.max)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSearchResults_LargeResults(t *testing.T) {
	results := make([]*retrieve.Result, 50)
	for i := 0; i < 50; i++ {
		results[i] = &retrieve.Result{
			RelativePath: "file.go",
			StartLine:    i * 10,
			EndLine:      i*10 + 10,
			Content:      "func Test() {}",
			Language:     "go",
			FinalScore:   float64(50-i) / 50.0,
		}
	}

	markdown := FormatSearchResults("test", results)

	assert.Contains(t, markdown, "Found 50 results")
	assert.Equal(t, 50, strings.Count(markdown, "### "))
}

func TestFormatSearchResults_DefaultsToTextLanguage(t *testing.T) {
	results := []*retrieve.Result{
		{RelativePath: "unknown.xyz", StartLine: 1, EndLine: 5, Content: "some content", Language: "", FinalScore: 0.8},
	}

	markdown := FormatSearchResults("test", results)

	assert.Contains(t, markdown, "```text")
}

func TestToSearchResultOutput_BasicFields(t *testing.T) {
	result := &retrieve.Result{
		RelativePath: "internal/auth/handler.go",
		Content:      "func AuthMiddleware() {}",
		Language:     "go",
		FinalScore:   0.95,
	}

	output := ToSearchResultOutput(result)

	assert.Equal(t, "internal/auth/handler.go", output.FilePath)
	assert.Equal(t, "func AuthMiddleware() {}", output.Content)
	assert.Equal(t, 0.95, output.Score)
	assert.Equal(t, "go", output.Language)
}

func TestToSearchResultOutput_WithSymbol(t *testing.T) {
	result := &retrieve.Result{
		RelativePath:  "internal/errors/retry.go",
		Content:       "func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error { ... }",
		Language:      "go",
		Name:          "Retry",
		Kind:          "function",
		QualifiedName: "func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error",
		FinalScore:    0.85,
	}

	output := ToSearchResultOutput(result)

	assert.Equal(t, "Retry", output.Symbol)
	assert.Equal(t, "function", output.SymbolType)
	assert.Equal(t, "func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error", output.Signature)
	assert.Contains(t, output.MatchReason, "function 'Retry'")
}

func TestToSearchResultOutput_NilResult(t *testing.T) {
	var result *retrieve.Result = nil

	output := ToSearchResultOutput(result)

	assert.Empty(t, output.FilePath)
	assert.Empty(t, output.Content)
}

func TestGenerateMatchReason_WithSymbolAndGraphExpansion(t *testing.T) {
	result := &retrieve.Result{
		Name:          "Retry",
		Kind:          "function",
		GraphExpanded: true,
	}

	reason := generateMatchReason(result)

	assert.Contains(t, reason, "function 'Retry'")
	assert.Contains(t, reason, "graph expansion")
}

func TestGenerateMatchReason_NoMatchContext(t *testing.T) {
	result := &retrieve.Result{
		RelativePath: "test.go",
		Content:      "some content",
	}

	reason := generateMatchReason(result)

	assert.Equal(t, "matched content", reason)
}

func TestGenerateMatchReason_NilResult(t *testing.T) {
	reason := generateMatchReason(nil)

	assert.Equal(t, "", reason)
}
