package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"podcast_ingest/internal/config"
	"podcast_ingest/internal/feed"
	"podcast_ingest/internal/queue"
	"podcast_ingest/internal/sample"
	"podcast_ingest/internal/search"
	"podcast_ingest/internal/storage/postgres"
	"podcast_ingest/internal/transcriber"
	"podcast_ingest/internal/worker"
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

	jobQueue, err := queue.NewRabbitMQ(queue.Config{
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

	transcriptStore := postgres.NewTranscriptStore(db)
	jobStore := postgres.NewJobStore(db)

	feedReader := feed.NewReader(feed.Config{
		Timeout:   cfg.Feed.Timeout.Std(),
		UserAgent: cfg.Feed.UserAgent,
	}, logger)
	extractor := sample.NewExtractor(sample.Config{
		TmpDir: cfg.Workflow.TmpDir,
	}, logger)

	// Each job gets a workflow built from its own credentials.
	newRunner := func(msg *queue.JobMessage) (worker.Runner, error) {
		deps := workflow.Deps{
			Feed:        feedReader,
			Extractor:   extractor,
			Transcriber: transcriber.New(msg.OpenAIAPIKey, logger),
			Store:       transcriptStore,
		}
		indexer, err := search.NewAlgoliaIndexer(msg.AlgoliaAppID, msg.AlgoliaWriteAPIKey, cfg.Search.IndexName, logger)
		if err != nil {
			logger.Warn("search indexer unavailable, indexing will be skipped", "job_id", msg.JobID, "error", err)
		} else {
			deps.Indexer = indexer
		}
		return workflow.New(deps, logger), nil
	}

	wrk := worker.New(jobQueue, jobStore, newRunner, cfg.RabbitMQ.JobTimeout.Std(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := wrk.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}
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
