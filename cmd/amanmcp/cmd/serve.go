package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/async"
	"github.com/Aman-CERP/amanmcp/internal/bm25f"
	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/embed"
	"github.com/Aman-CERP/amanmcp/internal/embedprovider"
	"github.com/Aman-CERP/amanmcp/internal/extract"
	"github.com/Aman-CERP/amanmcp/internal/logging"
	"github.com/Aman-CERP/amanmcp/internal/mcp"
	"github.com/Aman-CERP/amanmcp/internal/metrics"
	"github.com/Aman-CERP/amanmcp/internal/pipeline"
	"github.com/Aman-CERP/amanmcp/internal/retrieve"
	"github.com/Aman-CERP/amanmcp/internal/session"
	"github.com/Aman-CERP/amanmcp/internal/store"
	"github.com/Aman-CERP/amanmcp/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var (
		debug       bool
		transport   string
		sessionName string
		port        int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol server so AI clients (Claude Code,
Cursor) can search the indexed codebase.

BUG-034/BUG-035: the MCP protocol requires stdout to carry only JSON-RPC
traffic. All logging goes to a file; the server must answer the initialize
handshake immediately rather than waiting on file-watcher startup.

Examples:
  # Serve the current directory over stdio (used by MCP clients)
  amanmcp serve

  # Serve a named session, reusing its saved index
  amanmcp serve --session=work-api`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sessionName != "" {
				root, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("failed to resolve working directory: %w", err)
				}
				return runServeWithSession(cmd.Context(), sessionName, root, transport, port, metricsAddr)
			}
			return runServe(cmd.Context(), transport, port, metricsAddr)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable verbose (debug-level) logging")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type (stdio|sse)")
	cmd.Flags().StringVar(&sessionName, "session", "", "Resume or create a named session instead of indexing the current directory")
	cmd.Flags().IntVar(&port, "port", 8765, "Port for SSE transport")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "HTTP address to expose Prometheus metrics on (default: disabled)")

	return cmd
}

// runServe starts the MCP server against the current project's .amanmcp
// data directory and runs the index pipeline in the background on every start.
func runServe(ctx context.Context, transport string, port int, metricsAddr string) error {
	cleanup, err := logging.SetupMCPMode()
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanup()

	if transport == "stdio" {
		if err := verifyStdinForMCP(); err != nil {
			slog.Warn("stdin check failed", slog.String("error", err.Error()))
		}
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
	}

	dataDir := filepath.Join(root, ".amanmcp")
	return serveProject(ctx, root, dataDir, transport, port, metricsAddr)
}

// runServeWithSession resumes (or creates) a named session for projectPath
// and serves it over MCP, reusing the session's own data directory.
func runServeWithSession(ctx context.Context, name, projectPath, transport string, port int, metricsAddr string) error {
	cleanup, err := logging.SetupMCPMode()
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanup()

	if transport == "stdio" {
		if err := verifyStdinForMCP(); err != nil {
			slog.Warn("stdin check failed", slog.String("error", err.Error()))
		}
	}

	cfg, err := config.Load(projectPath)
	if err != nil {
		cfg = config.NewConfig()
	}

	storagePath := cfg.Sessions.StoragePath
	if storagePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		storagePath = filepath.Join(home, ".amanmcp", "sessions")
	}

	mgr, err := session.NewManager(session.ManagerConfig{
		StoragePath: storagePath,
		MaxSessions: cfg.Sessions.MaxSessions,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	sess, err := mgr.Open(name, projectPath)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() { _ = mgr.Save(sess) }()

	slog.Info("serving session", slog.String("session", name), slog.String("project", projectPath))

	return serveProject(ctx, projectPath, sess.SessionDir, transport, port, metricsAddr)
}

// serveProject wires the store, retriever, and MCP server over dataDir and
// blocks until ctx is cancelled or the transport loop exits. Indexing runs
// in the background (BUG-035) so the MCP handshake is never delayed by a
// slow initial scan or file-watcher startup.
func serveProject(ctx context.Context, root, dataDir, transport string, port int, metricsAddr string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	embed.SetThermalConfig(embed.ThermalConfig{
		TimeoutProgression:     cfg.Embeddings.TimeoutProgression,
		RetryTimeoutMultiplier: cfg.Embeddings.RetryTimeoutMultiplier,
	})
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
	embedder, err := embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
	embedCancel()
	if err != nil {
		slog.Warn("embedder initialization failed, falling back to static", slog.String("error", err.Error()))
		embedder = embed.NewStaticEmbedder768()
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
	collection.SetSparseEncoders(
		func(obj *extract.CodeObject) store.SparseVector { return encoder.EncodeCodeObject(obj) },
		func(doc *docchunk.DocumentNode) store.SparseVector { return encoder.EncodeDocument(doc) },
	)

	metricsCollector := metrics.NewCollector(prometheus.DefaultRegisterer)
	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	embeddingProvider := embedprovider.New(embedder, cfg.Indexing.BatchSize)
	retriever := retrieve.NewRetriever(collection, embeddingProvider, encoder, cfg.Search)
	retriever.SetMetrics(metricsCollector)

	srv, err := mcp.NewServer(retriever, collection.Metadata(), embedder, cfg, root)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	indexer := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: dataDir})
	indexer.IndexFunc = func(ctx context.Context, progress *async.IndexProgress) error {
		runner, err := pipeline.NewPipeline(root, cfg.Indexing, collection, embeddingProvider, nil, slog.Default())
		if err != nil {
			return fmt.Errorf("create index pipeline: %w", err)
		}
		runner.SetMetrics(metricsCollector)
		progress.SetStage(async.StageScanning, 0)
		result, err := runner.Run(ctx)
		if err != nil {
			return fmt.Errorf("run index pipeline: %w", err)
		}
		progress.UpdateFiles(result.FilesScanned)
		progress.SetChunksTotal(result.ObjectsExtracted + result.DocumentsExtracted)
		progress.UpdateChunks(result.ObjectsExtracted + result.DocumentsExtracted)
		if err := collection.Save(); err != nil {
			return fmt.Errorf("persist index: %w", err)
		}
		return nil
	}
	srv.SetIndexProgress(indexer.Progress())
	indexer.Start(ctx)
	defer indexer.Stop()

	if err := srv.RegisterResources(ctx); err != nil {
		slog.Warn("failed to register resources", slog.String("error", err.Error()))
	}

	startFileWatcher(ctx, root)

	return srv.Serve(ctx, transport, fmt.Sprintf(":%d", port))
}

// startMetricsServer exposes the process's Prometheus metrics on addr at
// /metrics. It runs until ctx is cancelled; listen errors are logged, not
// fatal, since metrics are an optional side channel.
func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("metrics.http.start", slog.String("addr", addr), slog.String("path", "/metrics"))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("metrics.http.error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// startFileWatcher launches the hybrid file watcher in the background.
// BUG-035: watcher startup must never block the MCP handshake, so the
// watcher is started in its own goroutine bounded by
// AMANMCP_WATCHER_STARTUP_TIMEOUT (default 5s).
func startFileWatcher(ctx context.Context, root string) {
	timeout := 5 * time.Second
	if v := os.Getenv("AMANMCP_WATCHER_STARTUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		}
	}

	go func() {
		w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
		if err != nil {
			slog.Error("failed to create file watcher", slog.String("error", err.Error()))
			return
		}

		startCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := w.Start(startCtx, root); err != nil {
			slog.Error("failed to start file watcher", slog.String("error", err.Error()))
			return
		}

		slog.Info("file watcher started", slog.String("root", root), slog.String("type", w.WatcherType()))

		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case events, ok := <-w.Events():
				if !ok {
					return
				}
				slog.Debug("file change batch", slog.Int("count", len(events)))
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				slog.Error("file watcher error", slog.String("error", err.Error()))
			}
		}
	}()
}

// verifyStdinForMCP checks that stdin looks like a pipe rather than an
// interactive terminal, since MCP clients always connect via pipe.
func verifyStdinForMCP() error {
	fd := os.Stdin.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return fmt.Errorf("stdin is a terminal, not a pipe: amanmcp serve expects to be launched by an MCP client over stdin/stdout")
	}
	return nil
}
