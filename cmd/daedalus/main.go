// Command daedalus runs the notebook execution service: an HTTP API over a
// document store and JavaScript kernel, with an optional JetStream worker for
// queued runs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/internal/httpapi"
	internalnats "github.com/wehubfusion/Daedalus/internal/nats"
	"github.com/wehubfusion/Daedalus/internal/tracing"
	"github.com/wehubfusion/Daedalus/pkg/chat"
	"github.com/wehubfusion/Daedalus/pkg/client"
	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/kernel/jskernel"
	"github.com/wehubfusion/Daedalus/pkg/notes"
	"github.com/wehubfusion/Daedalus/pkg/service"
	"github.com/wehubfusion/Daedalus/pkg/sources"
	"github.com/wehubfusion/Daedalus/pkg/store"
	"github.com/wehubfusion/Daedalus/pkg/worker"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("Service failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	undo := concurrency.InitializeForKubernetes()
	defer undo()

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: envOr("ENVIRONMENT", "development"),
		}); err != nil {
			return err
		}
		defer sentry.Flush(2 * time.Second)
	}

	if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
		cfg := tracing.DefaultConfig("daedalus")
		cfg.OTLPEndpoint = endpoint
		cfg.Environment = envOr("ENVIRONMENT", cfg.Environment)
		shutdown, err := tracing.Setup(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer tracing.Shutdown(shutdown, logger)
	}

	notebookDir := envOr("NOTEBOOK_DIR", "./notebooks")
	if err := os.MkdirAll(notebookDir, 0o755); err != nil {
		return err
	}
	resolver, err := store.NewResolver(notebookDir)
	if err != nil {
		return err
	}

	var docStore store.Store
	if conn := os.Getenv("AZURE_STORAGE_CONNECTION_STRING"); conn != "" {
		container := envOr("AZURE_STORAGE_CONTAINER", "notebooks")
		docStore, err = store.NewBlobStore(conn, container, logger)
		if err != nil {
			return err
		}
		logger.Info("Using blob-backed document store", zap.String("container", container))
	} else {
		docStore, err = store.NewFileStore(notebookDir, logger)
		if err != nil {
			return err
		}
		logger.Info("Using file-backed document store", zap.String("root", notebookDir))
	}

	provider, err := jskernel.NewProvider(jskernel.Config{
		SecurityLevel: envOr("KERNEL_SECURITY_LEVEL", ""),
	}, logger)
	if err != nil {
		return err
	}
	eng, err := engine.NewEngine(provider, logger, engine.WithFaultHandler(func(ctx context.Context, err error) {
		sentry.CaptureException(err)
	}))
	if err != nil {
		return err
	}

	ollama, err := chat.NewOllama(chat.OllamaConfig{
		Host:  os.Getenv("OLLAMA_HOST"),
		Model: os.Getenv("OLLAMA_MODEL"),
	}, logger)
	if err != nil {
		return err
	}
	suggester, err := chat.NewSuggester(ollama)
	if err != nil {
		return err
	}

	svcConfig := service.Config{
		RunAllBudget:  envDuration("RUN_ALL_BUDGET_SECONDS"),
		RunCellBudget: envDuration("RUN_CELL_BUDGET_SECONDS"),
	}
	svc, err := service.NewService(svcConfig, resolver, docStore, eng, logger,
		service.WithSuggester(suggester))
	if err != nil {
		return err
	}

	dataDir := envOr("DATA_DIR", "./data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	noteStore, err := notes.NewStore(filepath.Join(dataDir, "notes.json"), logger)
	if err != nil {
		return err
	}
	sourceStore, err := sources.NewStore(filepath.Join(dataDir, "sources.json"), logger)
	if err != nil {
		return err
	}
	history, err := chat.NewHistory(filepath.Join(dataDir, "chat_history.json"), logger)
	if err != nil {
		return err
	}

	server, err := httpapi.NewServer(httpapi.Config{}, svc, logger,
		httpapi.WithNotes(noteStore),
		httpapi.WithSources(sourceStore),
		httpapi.WithChat(history, ollama),
		httpapi.WithFetcher(chat.NewFetcher(logger)),
	)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         envOr("HTTP_ADDR", ":8000"),
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsClient := client.NewClientWithConfig(internalnats.DefaultConnectionConfig(natsURL), logger)
		if err := natsClient.Connect(ctx); err != nil {
			return err
		}
		defer natsClient.Close()

		queue, err := worker.NewNATSQueue(natsClient,
			envOr("NATS_STREAM", "NOTEBOOK_RUNS"),
			envOr("NATS_CONSUMER", "daedalus-worker"),
			logger)
		if err != nil {
			return err
		}
		wrk, err := worker.NewWorker(queue, svc,
			envInt("WORKER_BATCH_SIZE", 10),
			envInt("WORKER_COUNT", concurrency.LoadConfig().QueueWorkers),
			5*time.Minute,
			logger)
		if err != nil {
			return err
		}
		go func() {
			if err := wrk.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
		logger.Info("Queue worker started", zap.String("url", natsURL))
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// envDuration reads a whole-second budget; zero means use the built-in
// default.
func envDuration(key string) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}
