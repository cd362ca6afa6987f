// Package search indexes transcripts into Algolia so partial runs are
// immediately searchable.
package search

import (
	"fmt"
	"log/slog"

	"github.com/algolia/algoliasearch-client-go/v4/algolia/search"

	"podcast_ingest/internal/domain"
)

// AlgoliaIndexer upserts transcript records into a hosted Algolia index and
// waits for indexing tasks to settle before returning.
type AlgoliaIndexer struct {
	client    *search.APIClient
	appID     string
	indexName string
	logger    *slog.Logger
}

// AppID returns the Algolia application ID this indexer writes to.
func (a *AlgoliaIndexer) AppID() string { return a.appID }

// Index returns the index name this indexer writes to.
func (a *AlgoliaIndexer) Index() string { return a.indexName }

// NewAlgoliaIndexer builds an indexer for the given credentials. Returns an
// error when either credential is empty; callers that want index-less runs
// pass a nil indexer to the workflow instead.
func NewAlgoliaIndexer(appID, writeAPIKey, indexName string, logger *slog.Logger) (*AlgoliaIndexer, error) {
	if appID == "" || writeAPIKey == "" {
		return nil, fmt.Errorf("algolia credentials missing")
	}

	client, err := search.NewClient(appID, writeAPIKey)
	if err != nil {
		return nil, fmt.Errorf("init algolia client: %w", err)
	}

	return &AlgoliaIndexer{
		client:    client,
		appID:     appID,
		indexName: indexName,
		logger:    logger.With("component", "search", "index", indexName),
	}, nil
}

// Upsert saves the records and blocks until Algolia reports the indexing
// tasks settled, so a returned nil means the records are searchable.
func (a *AlgoliaIndexer) Upsert(records []domain.SearchRecord) error {
	if len(records) == 0 {
		a.logger.Info("no records to upload, skipping")
		return nil
	}

	objects := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		objects = append(objects, map[string]any{
			"objectID":      rec.ObjectID,
			"title":         rec.Title,
			"transcription": rec.Transcription,
		})
	}

	responses, err := a.client.SaveObjects(a.indexName, objects)
	if err != nil {
		return fmt.Errorf("save objects: %w", err)
	}

	for _, resp := range responses {
		if _, err := a.client.WaitForTask(a.indexName, resp.TaskID); err != nil {
			return fmt.Errorf("wait for indexing task %d: %w", resp.TaskID, err)
		}
	}

	a.logger.Info("uploaded records", "count", len(records))

	return nil
}
