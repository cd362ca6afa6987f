package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"podcast_ingest/internal/domain"
)

// ErrJobNotFound is returned when no job row exists for the given ID.
var ErrJobNotFound = errors.New("job not found")

type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

// Create records a new job. The caller sets the initial status.
func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, status, rss_url, num_episodes, sample_duration, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.RSSURL,
		job.NumEpisodes,
		job.SampleDuration,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// UpdateStatus moves a job to status, recording output data or an error
// message when given. Terminal rows are left untouched so a job can never
// hold two terminal statuses.
func (s *JobStore) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, outputData, errorMessage *string) error {
	query := `
		UPDATE jobs SET
			status = $2,
			output_data = COALESCE($3, output_data),
			error_message = COALESCE($4, error_message),
			updated_at = $5
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`

	res, err := s.db.ExecContext(ctx, query, id, status, outputData, errorMessage, time.Now().UTC())
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	query := `
		SELECT id, status, rss_url, num_episodes, sample_duration,
		       output_data, error_message, created_at, updated_at
		FROM jobs
		WHERE id = $1`

	err := s.db.GetContext(ctx, &job, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
