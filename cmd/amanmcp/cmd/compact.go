package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/logging"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

func newCompactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compact [path]",
		Short: "Compact the vector index by removing orphaned nodes",
		Long: `Rebuilds the dense vector index from embeddings stored in SQLite.

This reclaims memory from orphaned nodes created by lazy deletion during
file updates. Embeddings are read back from metadata.db, so no
re-embedding is required.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runCompact(cmd.Context(), path)
		},
	}

	return cmd
}

func runCompact(ctx context.Context, path string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".amanmcp")

	metadataPath := filepath.Join(dataDir, "metadata.db")
	if !fileExists(metadataPath) {
		return fmt.Errorf("no index found at %s - run 'amanmcp index' first", dataDir)
	}

	densePath := filepath.Join(dataDir, "dense.hnsw")
	if !fileExists(densePath) {
		return fmt.Errorf("no vector index found at %s - run 'amanmcp index' first", densePath)
	}

	fmt.Println("Compacting vector index...")
	startTime := time.Now()

	metadata, err := store.NewMetadataStore(metadataPath, store.DefaultBM25Config())
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	ids, vecs, skipped, err := collectStoredEmbeddings(ctx, metadata)
	if err != nil {
		return fmt.Errorf("failed to collect embeddings: %w", err)
	}

	if len(ids) == 0 {
		return fmt.Errorf("no stored embeddings found - run 'amanmcp index --force' to rebuild with embeddings")
	}
	if skipped > 0 {
		fmt.Printf("Warning: %d entities have no stored embedding and will be excluded\n", skipped)
	}

	dims := len(vecs[0])
	fmt.Printf("Loaded %d embeddings (dims=%d)\n", len(ids), dims)
	fmt.Printf("Creating fresh HNSW graph...\n")

	vectorCfg := store.DefaultVectorStoreConfig(dims)
	newVector, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = newVector.Close() }()

	fmt.Printf("Adding %d vectors to new graph...\n", len(ids))
	if err := newVector.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("failed to add vectors: %w", err)
	}

	if oldDims, err := store.ReadHNSWStoreDimensions(densePath); err == nil {
		if oldVector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(oldDims)); err == nil {
			if err := oldVector.Load(densePath); err == nil {
				if orphansRemoved := oldVector.Count() - newVector.Count(); orphansRemoved > 0 {
					fmt.Printf("Orphaned nodes removed: %d\n", orphansRemoved)
				}
			} else {
				slog.Warn("failed to load old vector store for comparison", slog.String("error", err.Error()))
			}
			_ = oldVector.Close()
		}
	}

	fmt.Println("Saving compacted index...")
	if err := newVector.Save(densePath); err != nil {
		return fmt.Errorf("failed to save vector store: %w", err)
	}

	elapsed := time.Since(startTime)
	fmt.Printf("Compaction complete in %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Vector count: %d\n", newVector.Count())

	return nil
}

// collectStoredEmbeddings reads every code object and document embedding
// back out of metadata, skipping entities with no stored vector.
func collectStoredEmbeddings(ctx context.Context, metadata *store.MetadataStore) (ids []string, vecs [][]float32, skipped int, err error) {
	paths, err := metadata.GetIndexedFilePaths(ctx)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("list indexed files: %w", err)
	}
	for path := range paths {
		objs, err := metadata.GetCodeObjectsByFile(ctx, path)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("get code objects for %s: %w", path, err)
		}
		for _, obj := range objs {
			if len(obj.Embedding) == 0 {
				skipped++
				continue
			}
			ids = append(ids, obj.ID)
			vecs = append(vecs, obj.Embedding)
		}
	}

	docs, err := metadata.GetAllDocuments(ctx, 0)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			skipped++
			continue
		}
		ids = append(ids, doc.ID)
		vecs = append(vecs, doc.Embedding)
	}

	return ids, vecs, skipped, nil
}
