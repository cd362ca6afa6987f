package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"podcast_ingest/internal/domain"
)

type TranscriptStore struct {
	db *sqlx.DB
}

func NewTranscriptStore(db *sqlx.DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// Upsert writes a transcript keyed by title, replacing any prior transcript
// for the same title.
func (s *TranscriptStore) Upsert(ctx context.Context, rec *domain.TranscriptRecord) error {
	query := `
		INSERT INTO transcripts (title, transcript, published, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (title) DO UPDATE SET
			transcript = EXCLUDED.transcript,
			published = EXCLUDED.published,
			processed_at = EXCLUDED.processed_at`

	_, err := s.db.ExecContext(ctx, query,
		rec.Title,
		rec.Transcript,
		rec.Published,
		rec.ProcessedAt,
	)
	return err
}

// DeleteAll clears the table. The store models the latest run, not history.
func (s *TranscriptStore) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcripts`)
	return err
}

func (s *TranscriptStore) FetchAll(ctx context.Context) ([]domain.TranscriptRecord, error) {
	var records []domain.TranscriptRecord
	query := `
		SELECT title, transcript, published, processed_at
		FROM transcripts
		ORDER BY processed_at`

	if err := s.db.SelectContext(ctx, &records, query); err != nil {
		return nil, err
	}
	return records, nil
}
