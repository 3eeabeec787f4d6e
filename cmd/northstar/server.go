package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/northstar-labs/northstar/internal/api"
	"github.com/northstar-labs/northstar/internal/config"
	"github.com/northstar-labs/northstar/internal/extract"
	"github.com/northstar-labs/northstar/internal/graph"
	"github.com/northstar-labs/northstar/internal/ingest"
	"github.com/northstar-labs/northstar/internal/ollama"
	"github.com/northstar-labs/northstar/internal/search"
	"github.com/northstar-labs/northstar/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the northstar server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running northstar server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show northstar system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "northstar.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "northstar version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("northstar is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("northstar is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check the local extraction and embedding models are ready.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.ExtractModel, os.Stderr); err != nil {
		return err
	}
	if err := ollama.EnsureModel(ctx, ollamaClient, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the graph core and its collaborators.
	graphSvc := graph.NewService(store)
	extractor := extract.NewExtractor(ollamaClient, cfg.Ollama.ExtractModel)

	// Semantic search stack: embeddings in SQLite, optional LLM reranking.
	embedder := search.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
	vectors := search.NewVectorStore(store.DB())
	rerankTimeout, err := time.ParseDuration(cfg.Search.RerankTimeout)
	if err != nil {
		slog.Warn("invalid rerank timeout, using default 5s", "value", cfg.Search.RerankTimeout, "error", err)
		rerankTimeout = 5 * time.Second
	}
	reranker := search.NewReranker(
		ollamaClient,
		cfg.Ollama.ExtractModel,
		cfg.Search.RerankEnabled,
		rerankTimeout,
		cfg.Search.RerankThreshold,
		cfg.Search.TopK,
	)
	searcher := search.NewSearcher(embedder, vectors, reranker)
	indexer := search.NewIndexer(embedder, vectors, store)

	appHandler := api.NewAppHandler(api.AppDeps{
		Graph:      graphSvc,
		Extractor:  extractor,
		Searcher:   searcher,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// MCP server over stdio, alongside the HTTP API.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Graph:     graphSvc,
		Extractor: extractor,
		Searcher:  searcher,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	// Background worker for queued ingestions and embedding.
	worker := ingest.NewWorker(store, extractor, graphSvc, indexer, 0)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "northstar listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := stdioSrv.Listen(gCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	slog.Info("MCP server started (stdio transport)")

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("northstar is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop northstar (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to northstar (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check Ollama.
	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Extract model", "%s", cfg.Ollama.ExtractModel)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
