// Command ingest runs one transcription workflow from the terminal and then
// uploads every stored transcript to the search index as a single batch.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"podcast_ingest/internal/config"
	"podcast_ingest/internal/domain"
	"podcast_ingest/internal/feed"
	"podcast_ingest/internal/sample"
	"podcast_ingest/internal/search"
	"podcast_ingest/internal/storage/postgres"
	"podcast_ingest/internal/transcriber"
	"podcast_ingest/internal/workflow"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	rssURL := flag.String("rss", "", "podcast RSS feed URL")
	episodes := flag.Int("episodes", 0, "number of episodes to process (default from config)")
	duration := flag.Int("duration", 0, "sample duration in seconds (default from config)")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	if *rssURL == "" {
		logger.Error("rss feed URL cannot be empty")
		os.Exit(1)
	}
	if *episodes <= 0 {
		*episodes = cfg.Workflow.DefaultEpisodes
	}
	if *duration <= 0 {
		*duration = cfg.Workflow.DefaultSampleDuration
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	transcriptStore := postgres.NewTranscriptStore(db)

	feedReader := feed.NewReader(feed.Config{
		Timeout:   cfg.Feed.Timeout.Std(),
		UserAgent: cfg.Feed.UserAgent,
	}, logger)
	extractor := sample.NewExtractor(sample.Config{
		TmpDir: cfg.Workflow.TmpDir,
	}, logger)

	deps := workflow.Deps{
		Feed:        feedReader,
		Extractor:   extractor,
		Transcriber: transcriber.New(os.Getenv("OPENAI_API_KEY"), logger),
		Store:       transcriptStore,
	}

	// Credentials come from the environment here, not a request payload.
	indexer, err := search.NewAlgoliaIndexer(
		os.Getenv("ALGOLIA_APP_ID"),
		os.Getenv("ALGOLIA_WRITE_API_KEY"),
		cfg.Search.IndexName,
		logger,
	)
	if err != nil {
		logger.Warn("search indexer unavailable, indexing will be skipped", "error", err)
	}

	ctx := context.Background()

	// The per-episode index upload is skipped here; this command uploads the
	// whole table once at the end instead.
	result, err := workflow.New(deps, logger).Run(ctx, workflow.Request{
		RSSURL:         *rssURL,
		NumEpisodes:    *episodes,
		SampleDuration: *duration,
	})
	if err != nil {
		logger.Error("workflow failed", "error", err)
		os.Exit(1)
	}

	for _, line := range result.StatusUpdates {
		fmt.Println(line)
	}

	if indexer == nil {
		logger.Info("no search credentials in environment, skipping batch upload")
		return
	}

	records, err := transcriptStore.FetchAll(ctx)
	if err != nil {
		logger.Error("failed to load stored transcripts", "error", err)
		os.Exit(1)
	}

	searchRecords := make([]domain.SearchRecord, 0, len(records))
	for _, rec := range records {
		searchRecords = append(searchRecords, domain.SearchRecord{
			ObjectID:      rec.Title,
			Title:         rec.Title,
			Transcription: rec.Transcript,
		})
	}

	if err := indexer.Upsert(searchRecords); err != nil {
		logger.Error("failed to upload transcripts to search index", "error", err)
		os.Exit(1)
	}

	logger.Info("batch upload complete", "records", len(searchRecords), "index", cfg.Search.IndexName)
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
