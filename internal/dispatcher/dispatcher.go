// Package dispatcher accepts transcription job submissions and answers
// status queries across the queue/worker split.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"podcast_ingest/internal/domain"
	"podcast_ingest/internal/queue"
	"podcast_ingest/internal/storage/postgres"
)

// ErrNotFound is returned when a job is unknown to both the store and the
// dispatcher's own submission bookkeeping.
var ErrNotFound = errors.New("job not found")

// JobRequest is one asynchronous submission, credentials included.
type JobRequest struct {
	RSSURL             string
	NumEpisodes        int
	SampleDuration     int
	OpenAIAPIKey       string
	AlgoliaAppID       string
	AlgoliaWriteAPIKey string
}

// JobView is the externally visible job state. Episodes is populated from a
// completed job's output data; a malformed payload degrades to an empty
// list rather than failing the query.
type JobView struct {
	JobID          string                 `json:"job_id"`
	Status         domain.JobStatus       `json:"status"`
	RSSURL         string                 `json:"rss_url"`
	NumEpisodes    int                    `json:"num_episodes"`
	SampleDuration int                    `json:"sample_duration"`
	Episodes       []domain.EpisodeResult `json:"transcribed_episodes,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Dispatcher hands submissions to the queue and tracks enough local state to
// answer status queries for jobs whose row write never landed.
type Dispatcher struct {
	jobs   JobStore
	queue  JobQueue
	logger *slog.Logger

	mu        sync.RWMutex
	submitted map[string]time.Time
}

func New(jobs JobStore, q JobQueue, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:      jobs,
		queue:     q,
		logger:    logger.With("component", "dispatcher"),
		submitted: make(map[string]time.Time),
	}
}

// Submit records a queued job and publishes it for background execution.
// Returns the generated job ID.
func (d *Dispatcher) Submit(ctx context.Context, req JobRequest) (string, error) {
	jobID := uuid.NewString()

	d.mu.Lock()
	d.submitted[jobID] = time.Now().UTC()
	d.mu.Unlock()

	job := &domain.Job{
		ID:             jobID,
		Status:         domain.JobQueued,
		RSSURL:         req.RSSURL,
		NumEpisodes:    req.NumEpisodes,
		SampleDuration: req.SampleDuration,
	}
	if err := d.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("record job: %w", err)
	}

	msg := &queue.JobMessage{
		JobID:              jobID,
		RSSURL:             req.RSSURL,
		NumEpisodes:        req.NumEpisodes,
		SampleDuration:     req.SampleDuration,
		OpenAIAPIKey:       req.OpenAIAPIKey,
		AlgoliaAppID:       req.AlgoliaAppID,
		AlgoliaWriteAPIKey: req.AlgoliaWriteAPIKey,
		SubmittedAt:        job.CreatedAt,
	}
	if err := d.queue.Publish(ctx, msg); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	d.logger.Info("job submitted", "job_id", jobID, "rss_url", req.RSSURL)

	return jobID, nil
}

// Status looks a job up in the store first, then in the dispatcher's own
// submission bookkeeping. Unknown everywhere yields ErrNotFound.
func (d *Dispatcher) Status(ctx context.Context, jobID string) (*JobView, error) {
	job, err := d.jobs.Get(ctx, jobID)
	if err == nil {
		return d.view(job), nil
	}
	if !errors.Is(err, postgres.ErrJobNotFound) {
		return nil, fmt.Errorf("look up job: %w", err)
	}

	d.mu.RLock()
	submittedAt, ok := d.submitted[jobID]
	d.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	// The row write failed or has not landed yet; the submission itself is
	// known, so report it as still queued.
	return &JobView{
		JobID:     jobID,
		Status:    domain.JobQueued,
		CreatedAt: submittedAt,
		UpdatedAt: submittedAt,
	}, nil
}

func (d *Dispatcher) view(job *domain.Job) *JobView {
	v := &JobView{
		JobID:          job.ID,
		Status:         job.Status,
		RSSURL:         job.RSSURL,
		NumEpisodes:    job.NumEpisodes,
		SampleDuration: job.SampleDuration,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
	if job.ErrorMessage != nil {
		v.ErrorMessage = *job.ErrorMessage
	}
	if job.Status == domain.JobCompleted && job.OutputData != nil {
		var episodes []domain.EpisodeResult
		if err := json.Unmarshal([]byte(*job.OutputData), &episodes); err != nil {
			d.logger.Warn("malformed job output data", "job_id", job.ID, "error", err)
		} else {
			v.Episodes = episodes
		}
	}
	return v
}
