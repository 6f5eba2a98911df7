package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/embed"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// DebugInfo is the full diagnostic snapshot 'amanmcp debug' reports.
type DebugInfo struct {
	IndexPath   string    `json:"index_path"`
	ProjectRoot string    `json:"project_root"`
	FileCount   int       `json:"file_count"`
	ChunkCount  int       `json:"chunk_count"`
	LastIndexed time.Time `json:"last_indexed"`

	Languages map[string]float64 `json:"languages"`

	EmbedderProvider   string `json:"embedder_provider"`
	EmbedderModel      string `json:"embedder_model"`
	EmbedderDimensions int    `json:"embedder_dimensions"`

	MetadataBytes int64 `json:"metadata_bytes"`
	SparseBytes   int64 `json:"sparse_bytes"`
	DenseBytes    int64 `json:"dense_bytes"`
}

func newDebugCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:    "debug",
		Short:  "Print detailed diagnostic information about the index",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDebug(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDebug(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		cwd, _ := os.Getwd()
		root = cwd
	}

	dataDir := filepath.Join(root, ".amanmcp")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if !fileExists(metadataPath) {
		return fmt.Errorf("no index found in %s\nRun 'amanmcp index' to create one", root)
	}

	info, err := collectDebugInfo(ctx, root, dataDir)
	if err != nil {
		return fmt.Errorf("failed to collect debug info: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	return printDebugInfo(cmd, info)
}

func collectDebugInfo(ctx context.Context, root, dataDir string) (DebugInfo, error) {
	info := DebugInfo{IndexPath: dataDir, ProjectRoot: root}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewMetadataStore(metadataPath, store.DefaultBM25Config())
	if err != nil {
		return info, fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	if state, err := metadata.GetIndexState(ctx); err == nil && state != nil {
		info.FileCount = state.FileCount
		info.ChunkCount = state.ObjectCount + state.DocumentCount
		info.LastIndexed = state.IndexedAt
	}

	if paths, err := metadata.GetIndexedFilePaths(ctx); err == nil {
		info.Languages = languageBreakdown(paths)
	}

	info.MetadataBytes = fileSize(metadataPath)
	info.SparseBytes = fileSize(filepath.Join(dataDir, "sparse.gob"))
	info.DenseBytes = fileSize(filepath.Join(dataDir, "dense.hnsw"))

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	embedCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	if embedder, err := embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model); err == nil {
		embedInfo := embed.GetInfo(embedCtx, embedder)
		info.EmbedderProvider = string(embedInfo.Provider)
		info.EmbedderModel = embedInfo.Model
		info.EmbedderDimensions = embedInfo.Dimensions
		_ = embedder.Close()
	}

	return info, nil
}

// languageBreakdown tallies indexed files by normalized extension and
// returns each extension's share of the total.
func languageBreakdown(paths map[string]struct{}) map[string]float64 {
	counts := make(map[string]int)
	for path := range paths {
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if ext == "" {
			continue
		}
		counts[normalizeExtension(ext)]++
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return nil
	}

	langs := make(map[string]float64, len(counts))
	for lang, c := range counts {
		langs[lang] = float64(c) / float64(total)
	}
	return langs
}

// normalizeExtension collapses related extensions into a single language key.
func normalizeExtension(ext string) string {
	switch ext {
	case "tsx":
		return "ts"
	case "jsx", "mjs":
		return "js"
	case "yml":
		return "yaml"
	case "htm":
		return "html"
	default:
		return ext
	}
}

func printDebugInfo(cmd *cobra.Command, info DebugInfo) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "AmanMCP Debug Info")
	fmt.Fprintln(w, "==================")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Index:   %s\n", info.IndexPath)
	fmt.Fprintf(w, "Project: %s\n", info.ProjectRoot)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "FILES & CHUNKS")
	fmt.Fprintf(w, "  Files:        %s\n", formatNumber(info.FileCount))
	fmt.Fprintf(w, "  Chunks:       %s\n", formatNumber(info.ChunkCount))
	fmt.Fprintf(w, "  Last indexed: %s\n", formatAge(info.LastIndexed))
	fmt.Fprintf(w, "  Languages:    %s\n", formatLanguages(info.Languages))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "EMBEDDER")
	fmt.Fprintf(w, "  Provider:   %s\n", info.EmbedderProvider)
	fmt.Fprintf(w, "  Model:      %s\n", info.EmbedderModel)
	fmt.Fprintf(w, "  Dimensions: %d\n", info.EmbedderDimensions)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "BM25 INDEX")
	fmt.Fprintf(w, "  Size: %s\n", formatBytes(info.SparseBytes))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "VECTOR STORE")
	fmt.Fprintf(w, "  Size: %s\n", formatBytes(info.DenseBytes))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STORAGE")
	fmt.Fprintf(w, "  Metadata: %s\n", formatBytes(info.MetadataBytes))
	fmt.Fprintf(w, "  Sparse:   %s\n", formatBytes(info.SparseBytes))
	fmt.Fprintf(w, "  Dense:    %s\n", formatBytes(info.DenseBytes))

	return nil
}

// formatAge renders a human-friendly relative time for the index's last run.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d / time.Minute)
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case d < 24*time.Hour:
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

// formatNumber adds thousands separators to n.
func formatNumber(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}

	result := string(out)
	if neg {
		result = "-" + result
	}
	return result
}

// formatLanguages renders a language share map sorted by descending share.
func formatLanguages(langs map[string]float64) string {
	if len(langs) == 0 {
		return "none"
	}

	type entry struct {
		lang string
		pct  float64
	}
	entries := make([]entry, 0, len(langs))
	for lang, pct := range langs {
		entries = append(entries, entry{lang, pct})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].pct != entries[j].pct {
			return entries[i].pct > entries[j].pct
		}
		return entries[i].lang < entries[j].lang
	})

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s (%d%%)", e.lang, int(e.pct*100+0.5)))
	}
	return strings.Join(parts, ", ")
}
