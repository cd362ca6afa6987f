package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"podcast_ingest/internal/config"
	"podcast_ingest/internal/dispatcher"
	"podcast_ingest/internal/feed"
	"podcast_ingest/internal/queue"
	"podcast_ingest/internal/sample"
	"podcast_ingest/internal/search"
	"podcast_ingest/internal/server"
	"podcast_ingest/internal/storage/postgres"
	"podcast_ingest/internal/transcriber"
	"podcast_ingest/internal/workflow"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	transcriptStore := postgres.NewTranscriptStore(db)
	jobStore := postgres.NewJobStore(db)

	feedReader := feed.NewReader(feed.Config{
		Timeout:   cfg.Feed.Timeout.Std(),
		UserAgent: cfg.Feed.UserAgent,
	}, logger)
	extractor := sample.NewExtractor(sample.Config{
		TmpDir: cfg.Workflow.TmpDir,
	}, logger)

	// Workflows are built per request so credentials stay request-scoped.
	newWorkflow := func(openaiAPIKey, algoliaAppID, algoliaWriteAPIKey string) (server.Runner, error) {
		deps := workflow.Deps{
			Feed:        feedReader,
			Extractor:   extractor,
			Transcriber: transcriber.New(openaiAPIKey, logger),
			Store:       transcriptStore,
		}
		indexer, err := search.NewAlgoliaIndexer(algoliaAppID, algoliaWriteAPIKey, cfg.Search.IndexName, logger)
		if err != nil {
			// Search indexing degrades to skipped, never fails the run.
			logger.Warn("search indexer unavailable, indexing will be skipped", "error", err)
		} else {
			deps.Indexer = indexer
		}
		return workflow.New(deps, logger), nil
	}

	var submitter server.Submitter
	var jobQueue *queue.RabbitMQ
	if cfg.RabbitMQ.Enabled {
		jobQueue, err = queue.NewRabbitMQ(queue.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer jobQueue.Close()

		submitter = dispatcher.New(jobStore, jobQueue, logger)
	}

	srv := server.New(server.Config{
		Port:                  cfg.Server.Port,
		ReadTimeout:           cfg.Server.ReadTimeout.Std(),
		WriteTimeout:          cfg.Server.WriteTimeout.Std(),
		DefaultEpisodes:       cfg.Workflow.DefaultEpisodes,
		DefaultSampleDuration: cfg.Workflow.DefaultSampleDuration,
	}, newWorkflow, submitter, logger)

	go func() {
		logger.Info("starting http server", "port", cfg.Server.Port, "queued_mode", cfg.RabbitMQ.Enabled)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
