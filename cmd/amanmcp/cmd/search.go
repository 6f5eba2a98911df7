package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/bm25f"
	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/embed"
	"github.com/Aman-CERP/amanmcp/internal/embedprovider"
	"github.com/Aman-CERP/amanmcp/internal/logging"
	"github.com/Aman-CERP/amanmcp/internal/output"
	"github.com/Aman-CERP/amanmcp/internal/retrieve"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	filter   string // "all", "code", "docs"
	language string
	format   string // "text", "json"
	bm25Only bool   // skip the dense leg, sparse-only retrieval
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search the indexed codebase using hybrid search.

Combines BM25F (keyword) and semantic (embedding) search with
reciprocal-rank fusion, one-hop graph expansion, and relevance
boosting for result ranking.

Examples:
  amanmcp search "authentication middleware"
  amanmcp search "handleRequest" --type code --limit 5
  amanmcp search "setup instructions" --type docs
  amanmcp search "error handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.filter, "type", "t", "all", "Filter by type: all, code, docs")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g., go, python)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.bm25Only, "bm25-only", false, "Use keyword search only (skip semantic search)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))
	out := output.New(cmd.OutOrStdout())

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	dataDir := filepath.Join(root, ".amanmcp")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if _, err := os.Stat(metadataPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'amanmcp index' first")
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	var embedder embed.Embedder
	if opts.bm25Only {
		embedder = embed.NewStaticEmbedder768()
	} else {
		embed.SetMLXConfig(embed.MLXServerConfig{
			Endpoint: cfg.Embeddings.MLXEndpoint,
			Model:    cfg.Embeddings.MLXModel,
		})
		provider := embed.ParseProvider(cfg.Embeddings.Provider)
		embedder, err = embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
	}
	defer func() { _ = embedder.Close() }()

	collection, err := store.OpenCollection(store.CollectionConfig{
		DataDir:    dataDir,
		Dimensions: embedder.Dimensions(),
	})
	if err != nil {
		return fmt.Errorf("failed to open collection: %w", err)
	}
	defer func() { _ = collection.Close() }()

	encoder := bm25f.NewEncoder(bm25f.DefaultConfig())
	retriever := retrieve.NewRetriever(collection, embedprovider.New(embedder, 0), encoder, cfg.Search)

	q := retrieve.Query{
		Text:  query,
		Limit: opts.limit,
	}
	switch strings.ToLower(opts.filter) {
	case "code":
		q.TypeFilter = "code"
	case "docs", "document", "documents":
		q.TypeFilter = "document"
	}
	q.LanguageFilter = opts.language
	if opts.bm25Only {
		q.Embedding = make([]float32, embedder.Dimensions())
	}

	results, err := retriever.Search(ctx, q)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	slog.Info("search_complete", slog.Int("results", len(results)))

	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch opts.format {
	case "json":
		return formatSearchJSON(cmd, results)
	default:
		return formatSearchText(out, query, results)
	}
}

// formatSearchText outputs results in human-readable format.
func formatSearchText(out *output.Writer, query string, results []*retrieve.Result) error {
	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		location := r.RelativePath
		if r.StartLine > 0 {
			location = fmt.Sprintf("%s:%d", r.RelativePath, r.StartLine)
		}

		label := r.Name
		if label == "" {
			label = location
		}
		suffix := ""
		if r.GraphExpanded {
			suffix = " [graph]"
		}
		out.Statusf("", "%d. %s (score: %.3f)%s", i+1, location, r.FinalScore, suffix)
		if label != location {
			out.Status("", "   "+label)
		}

		for _, line := range getSnippet(r.Content, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}

	return nil
}

// formatSearchJSON outputs results in JSON format.
func formatSearchJSON(cmd *cobra.Command, results []*retrieve.Result) error {
	type jsonResult struct {
		ID            string  `json:"id"`
		Type          string  `json:"type"`
		FilePath      string  `json:"file_path"`
		StartLine     int     `json:"start_line,omitempty"`
		EndLine       int     `json:"end_line,omitempty"`
		Score         float64 `json:"score"`
		Name          string  `json:"name,omitempty"`
		QualifiedName string  `json:"qualified_name,omitempty"`
		Language      string  `json:"language,omitempty"`
		Content       string  `json:"content"`
		GraphExpanded bool    `json:"graph_expanded,omitempty"`
	}

	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		out = append(out, jsonResult{
			ID:            r.ID,
			Type:          r.Type,
			FilePath:      r.RelativePath,
			StartLine:     r.StartLine,
			EndLine:       r.EndLine,
			Score:         r.FinalScore,
			Name:          r.Name,
			QualifiedName: r.QualifiedName,
			Language:      r.Language,
			Content:       r.Content,
			GraphExpanded: r.GraphExpanded,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// getSnippet returns the first n lines of content.
func getSnippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
