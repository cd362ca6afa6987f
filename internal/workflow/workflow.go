// Package workflow drives one podcast ingestion run: fetch episodes,
// sample, transcribe, persist and index, with per-step failure isolation.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"podcast_ingest/internal/domain"
)

// Request holds the parameters of one run.
type Request struct {
	RSSURL         string
	NumEpisodes    int
	SampleDuration int
}

// Result is a successful run's outcome, including the full ordered status
// log. AlgoliaAppID/AlgoliaIndex are empty when no indexer was configured.
type Result struct {
	Message       string                 `json:"message"`
	Episodes      []domain.EpisodeResult `json:"transcribed_episodes"`
	AlgoliaAppID  string                 `json:"algolia_app_id,omitempty"`
	AlgoliaIndex  string                 `json:"algolia_index,omitempty"`
	StatusUpdates []string               `json:"status_updates"`
}

// Deps are the collaborators of one run. Indexer may be nil, in which case
// indexing is skipped and logged.
type Deps struct {
	Feed        FeedReader
	Extractor   SampleExtractor
	Transcriber Transcriber
	Store       TranscriptStore
	Indexer     SearchIndexer
}

// Workflow runs the pipeline strictly sequentially. Instances are scoped to
// a single request and must not be shared: the status log accumulates here.
type Workflow struct {
	deps   Deps
	logger *slog.Logger
	status []string
	now    func() time.Time
}

func New(deps Deps, logger *slog.Logger) *Workflow {
	return &Workflow{
		deps:   deps,
		logger: logger.With("component", "workflow"),
		now:    time.Now,
	}
}

// Run executes the full pipeline. A nil error means success, including the
// no-episodes case. A non-nil error is always a *RunError carrying the
// status log accumulated so far.
func (w *Workflow) Run(ctx context.Context, req Request) (*Result, error) {
	w.status = nil
	w.log("Starting podcast transcription workflow...")

	w.log("Clearing existing podcast transcripts from the database...")
	if err := w.deps.Store.DeleteAll(ctx); err != nil {
		return nil, w.fatal(KindUnexpected, "failed to clear transcript store", err)
	}

	w.log(fmt.Sprintf("Fetching %d episodes from RSS feed: %s...", req.NumEpisodes, req.RSSURL))
	episodes, err := w.deps.Feed.Fetch(ctx, req.RSSURL, req.NumEpisodes)
	if err != nil {
		return nil, w.fatal(KindUnexpected, "failed to fetch RSS feed", err)
	}
	w.log(fmt.Sprintf("Found %d episodes with audio URLs.", len(episodes)))

	if len(episodes) == 0 {
		w.log("No episodes with audio found to process.")
		return &Result{
			Message:       "No episodes with audio found in the feed.",
			StatusUpdates: w.status,
		}, nil
	}

	var results []domain.EpisodeResult
	for i, ep := range episodes {
		res, err := w.processEpisode(ctx, i, len(episodes), ep, req.SampleDuration)
		if err != nil {
			return nil, err
		}
		if res != nil {
			results = append(results, *res)
		}
	}

	if w.deps.Indexer == nil {
		w.log("Search indexer not configured. No records were uploaded during this run.")
	} else if len(results) == 0 {
		w.log("No episodes were successfully transcribed to upload to the search index.")
	}

	w.log("Podcast transcription workflow completed.")

	result := &Result{
		Message:       "Podcast transcription workflow completed successfully!",
		Episodes:      results,
		StatusUpdates: w.status,
	}
	if w.deps.Indexer != nil {
		result.AlgoliaAppID = w.deps.Indexer.AppID()
		result.AlgoliaIndex = w.deps.Indexer.Index()
	}
	return result, nil
}

// processEpisode drives one episode through download, transcription,
// persistence and indexing. A nil result with nil error means the episode
// was skipped. The sample file is removed on every exit path.
func (w *Workflow) processEpisode(ctx context.Context, i, total int, ep domain.Episode, sampleDuration int) (result *domain.EpisodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log(fmt.Sprintf("An unexpected error occurred during processing '%s': %v", ep.Title, r))
			w.logger.Error("panic during episode processing", "title", ep.Title, "panic", r)
			result = nil
			err = w.fatal(KindUnexpected, fmt.Sprintf("unexpected error during episode processing: %v", r), nil)
		}
	}()

	w.log(fmt.Sprintf("--- Processing episode %d/%d: %s ---", i+1, total, ep.Title))

	w.log(fmt.Sprintf("Downloading %ds audio sample for '%s'...", sampleDuration, ep.Title))
	samplePath, extractErr := w.deps.Extractor.Extract(ctx, ep.AudioURL, sampleDuration)
	if extractErr != nil {
		// A single failed download never aborts the run.
		w.logger.Warn("sample extraction failed", "title", ep.Title, "error", extractErr)
		w.log(fmt.Sprintf("Skipping transcription for '%s' due to download/processing error.", ep.Title))
		return nil, nil
	}
	defer w.removeSample(samplePath)

	w.log(fmt.Sprintf("Sample saved to: %s", samplePath))

	w.log(fmt.Sprintf("Transcribing audio sample for '%s'...", ep.Title))
	transcription, trErr := w.deps.Transcriber.Transcribe(ctx, samplePath)
	if trErr != nil {
		w.log(fmt.Sprintf("Transcription failed for '%s': %v", ep.Title, trErr))
		return nil, w.fatal(KindTranscriptionFailed, "transcription failed", trErr)
	}
	w.log(fmt.Sprintf("Transcription complete for '%s'.", ep.Title))

	if ep.Title == "" || transcription == "" {
		w.log(fmt.Sprintf("No transcript generated for '%s'.", ep.Title))
		return nil, nil
	}

	rec := &domain.TranscriptRecord{
		Title:       ep.Title,
		Transcript:  transcription,
		Published:   ep.Published,
		ProcessedAt: w.now().UTC(),
	}
	w.log(fmt.Sprintf("Saving '%s' to database...", ep.Title))
	if err := w.deps.Store.Upsert(ctx, rec); err != nil {
		return nil, w.fatal(KindUnexpected, fmt.Sprintf("failed to save transcript for '%s'", ep.Title), err)
	}
	w.log(fmt.Sprintf("Saved '%s' to database.", ep.Title))

	// Index each episode as soon as it lands so partial runs stay
	// searchable.
	if w.deps.Indexer != nil {
		w.log(fmt.Sprintf("Uploading transcription for '%s' to search index...", ep.Title))
		record := domain.SearchRecord{
			ObjectID:      ep.Title,
			Title:         ep.Title,
			Transcription: transcription,
		}
		if err := w.deps.Indexer.Upsert([]domain.SearchRecord{record}); err != nil {
			return nil, w.fatal(KindUnexpected, fmt.Sprintf("failed to index transcript for '%s'", ep.Title), err)
		}
		w.log(fmt.Sprintf("Uploaded '%s' to search index.", ep.Title))
	} else {
		w.log("Search indexer not configured. Skipping index upload for this episode.")
	}

	res := domain.NewEpisodeResult(ep.Title, transcription)
	return &res, nil
}

func (w *Workflow) removeSample(path string) {
	if err := os.Remove(path); err != nil {
		w.logger.Warn("failed to remove sample file", "path", path, "error", err)
		return
	}
	w.log(fmt.Sprintf("Cleaned up sample audio file: %s", path))
}

func (w *Workflow) log(msg string) {
	w.status = append(w.status, fmt.Sprintf("%s - %s", w.now().Format("15:04:05"), msg))
	w.logger.Info(msg)
}

func (w *Workflow) fatal(kind ErrorKind, msg string, err error) *RunError {
	return &RunError{
		Kind:          kind,
		Message:       msg,
		StatusUpdates: append([]string(nil), w.status...),
		Err:           err,
	}
}
