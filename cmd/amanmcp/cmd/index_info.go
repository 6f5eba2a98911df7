package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/embed"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

func newIndexInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info [path]",
		Short: "Show index configuration and statistics",
		Long: `Display detailed information about the search index including embedding
model, dimensions, chunk counts, and file sizes.

This command helps you:
- Check which model the current index uses
- Debug dimension mismatch errors
- Verify index was built correctly after reindex
- Compare index configurations across projects`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			return runIndexInfo(cmd.Context(), cmd, path, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

// indexInfo is the display shape this command renders, assembled from
// MetadataStore's statistics/state and the current embedder configuration.
type indexInfo struct {
	Location   string
	ProjectDir string

	ObjectCount   int
	DocumentCount int
	MetadataBytes int64
	SparseBytes   int64
	DenseBytes    int64

	CurrentModel      string
	CurrentBackend    string
	CurrentDimensions int
}

func runIndexInfo(ctx context.Context, cmd *cobra.Command, path string, jsonOutput bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".amanmcp")
	metadataPath := filepath.Join(dataDir, "metadata.db")

	if _, err := os.Stat(metadataPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s\nRun 'amanmcp index %s' to create one", dataDir, path)
	}

	metadata, err := store.NewMetadataStore(metadataPath, store.DefaultBM25Config())
	if err != nil {
		return fmt.Errorf("failed to open metadata: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	stats, err := metadata.GetStatistics(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index statistics: %w", err)
	}

	info := &indexInfo{
		Location:      dataDir,
		ProjectDir:    root,
		ObjectCount:   stats.Code,
		DocumentCount: stats.Document,
		MetadataBytes: fileSize(metadataPath),
		SparseBytes:   fileSize(filepath.Join(dataDir, "sparse.gob")),
		DenseBytes:    fileSize(filepath.Join(dataDir, "dense.hnsw")),
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	if embedder, err := embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model); err == nil {
		embedInfo := embed.GetInfo(ctx, embedder)
		info.CurrentModel = embedInfo.Model
		info.CurrentBackend = string(embedInfo.Provider)
		info.CurrentDimensions = embedInfo.Dimensions
		_ = embedder.Close()
	}

	if jsonOutput {
		return outputIndexInfoJSON(cmd, info)
	}
	return outputIndexInfoHuman(cmd, info)
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func outputIndexInfoJSON(cmd *cobra.Command, info *indexInfo) error {
	output := map[string]interface{}{
		"location": info.Location,
		"project":  info.ProjectDir,
		"statistics": map[string]interface{}{
			"objects":        info.ObjectCount,
			"documents":      info.DocumentCount,
			"metadata_bytes": info.MetadataBytes,
			"sparse_bytes":   info.SparseBytes,
			"dense_bytes":    info.DenseBytes,
		},
		"current_embedder": map[string]interface{}{
			"model":      info.CurrentModel,
			"backend":    info.CurrentBackend,
			"dimensions": info.CurrentDimensions,
		},
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func outputIndexInfoHuman(cmd *cobra.Command, info *indexInfo) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Index Information")
	fmt.Fprintln(out, "=================")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Location:    %s\n", info.Location)
	fmt.Fprintf(out, "Project:     %s\n", info.ProjectDir)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Index Statistics:")
	fmt.Fprintf(out, "  Objects:       %d\n", info.ObjectCount)
	fmt.Fprintf(out, "  Documents:     %d\n", info.DocumentCount)
	fmt.Fprintf(out, "  Metadata Size: %s\n", formatBytes(info.MetadataBytes))
	fmt.Fprintf(out, "  Sparse Size:   %s\n", formatBytes(info.SparseBytes))
	fmt.Fprintf(out, "  Dense Size:    %s\n", formatBytes(info.DenseBytes))
	fmt.Fprintln(out)

	if info.CurrentModel != "" {
		fmt.Fprintln(out, "Current Embedder:")
		fmt.Fprintf(out, "  Model:       %s\n", info.CurrentModel)
		fmt.Fprintf(out, "  Backend:     %s\n", info.CurrentBackend)
		fmt.Fprintf(out, "  Dimensions:  %d\n", info.CurrentDimensions)
	}

	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
