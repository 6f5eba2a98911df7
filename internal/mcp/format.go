package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/retrieve"
)

// FormatSearchResults formats generic search results as markdown.
func FormatSearchResults(query string, results []*retrieve.Result) string {
	validResults := filterValidResults(results)

	if len(validResults) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Search Results for \"%s\"\n\n", query))
	sb.WriteString(fmt.Sprintf("Found %d result", len(validResults)))
	if len(validResults) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range validResults {
		formatResult(&sb, i+1, r)
	}

	return sb.String()
}

// FormatCodeResults formats code-specific results with syntax highlighting.
func FormatCodeResults(query string, results []*retrieve.Result, langFilter string) string {
	validResults := filterValidResults(results)

	if len(validResults) == 0 {
		msg := fmt.Sprintf("No code results found for \"%s\"", query)
		if langFilter != "" {
			msg += fmt.Sprintf(" in %s files", langFilter)
		}
		return msg
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Code Search Results for \"%s\"\n\n", query))
	if langFilter != "" {
		sb.WriteString(fmt.Sprintf("Language filter: `%s`\n\n", langFilter))
	}
	sb.WriteString(fmt.Sprintf("Found %d result", len(validResults)))
	if len(validResults) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range validResults {
		formatResult(&sb, i+1, r)
	}

	return sb.String()
}

// FormatDocsResults formats documentation results preserving section hierarchy.
func FormatDocsResults(query string, results []*retrieve.Result) string {
	validResults := filterValidResults(results)

	if len(validResults) == 0 {
		return fmt.Sprintf("No documentation found for \"%s\"", query)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Documentation Results for \"%s\"\n\n", query))
	sb.WriteString(fmt.Sprintf("Found %d result", len(validResults)))
	if len(validResults) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range validResults {
		formatDocsResult(&sb, i+1, r)
	}

	return sb.String()
}

// filterValidResults removes nil entries.
func filterValidResults(results []*retrieve.Result) []*retrieve.Result {
	valid := make([]*retrieve.Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			valid = append(valid, r)
		}
	}
	return valid
}

// formatResult formats a single generic result.
func formatResult(sb *strings.Builder, num int, r *retrieve.Result) {
	fmt.Fprintf(sb, "### %d. %s:%d-%d (score: %.2f)\n",
		num,
		r.RelativePath,
		r.StartLine,
		r.EndLine,
		r.FinalScore,
	)

	if r.Name != "" {
		label := r.Name
		if r.Kind != "" {
			label = fmt.Sprintf("%s `%s`", r.Kind, r.Name)
		}
		fmt.Fprintf(sb, "**Symbol:** %s\n\n", label)
	}

	lang := r.Language
	if lang == "" {
		lang = "text"
	}

	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", lang, r.Content)
}

// formatDocsResult formats a documentation result preserving structure.
func formatDocsResult(sb *strings.Builder, num int, r *retrieve.Result) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n\n",
		num,
		r.RelativePath,
		r.FinalScore,
	)

	if r.Language == "markdown" || r.Language == "md" {
		sb.WriteString(r.Content)
		sb.WriteString("\n\n---\n\n")
	} else {
		fmt.Fprintf(sb, "```\n%s\n```\n\n", r.Content)
	}
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToSearchResultOutput converts a search result to the enhanced output format.
func ToSearchResultOutput(r *retrieve.Result) SearchResultOutput {
	if r == nil {
		return SearchResultOutput{}
	}

	output := SearchResultOutput{
		FilePath: r.RelativePath,
		Content:  r.Content,
		Score:    r.FinalScore,
		Language: r.Language,
	}

	if r.Name != "" {
		output.Symbol = r.Name
		output.SymbolType = r.Kind
		output.Signature = r.QualifiedName
	}

	output.MatchReason = generateMatchReason(r)

	return output
}

// generateMatchReason creates a human-readable explanation of why a result matched.
func generateMatchReason(r *retrieve.Result) string {
	if r == nil {
		return ""
	}

	var parts []string

	if r.Name != "" {
		if r.Kind != "" {
			parts = append(parts, fmt.Sprintf("%s '%s'", r.Kind, r.Name))
		} else {
			parts = append(parts, fmt.Sprintf("'%s'", r.Name))
		}
	}

	if r.GraphExpanded {
		parts = append(parts, "found via graph expansion from a directly matched result")
	}

	if len(parts) == 0 {
		return "matched content"
	}

	return strings.Join(parts, "; ")
}
