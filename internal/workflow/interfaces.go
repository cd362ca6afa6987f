package workflow

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"podcast_ingest/internal/domain"
)

type FeedReader interface {
	Fetch(ctx context.Context, feedURL string, maxEpisodes int) ([]domain.Episode, error)
}

type SampleExtractor interface {
	Extract(ctx context.Context, audioURL string, durationSec int) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

type TranscriptStore interface {
	Upsert(ctx context.Context, rec *domain.TranscriptRecord) error
	DeleteAll(ctx context.Context) error
}

type SearchIndexer interface {
	Upsert(records []domain.SearchRecord) error
	AppID() string
	Index() string
}
