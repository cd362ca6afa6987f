// Package worker runs queued transcription jobs to completion, keeping the
// job table's status in sync on every exit path.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"podcast_ingest/internal/domain"
	"podcast_ingest/internal/queue"
	"podcast_ingest/internal/workflow"
)

//go:generate mockgen -source=worker.go -destination=mocks/mocks.go -package=mocks

type JobStore interface {
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, outputData, errorMessage *string) error
}

type Runner interface {
	Run(ctx context.Context, req workflow.Request) (*workflow.Result, error)
}

// RunnerFactory builds a fresh, request-scoped workflow for one job's
// credentials. Credentials never outlive the job.
type RunnerFactory func(msg *queue.JobMessage) (Runner, error)

type JobSource interface {
	Consume() (<-chan amqp.Delivery, error)
}

type Worker struct {
	source     JobSource
	jobs       JobStore
	newRunner  RunnerFactory
	jobTimeout time.Duration
	logger     *slog.Logger
}

func New(source JobSource, jobs JobStore, newRunner RunnerFactory, jobTimeout time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		source:     source,
		jobs:       jobs,
		newRunner:  newRunner,
		jobTimeout: jobTimeout,
		logger:     logger.With("component", "worker"),
	}
}

// Start consumes jobs until ctx is cancelled. Every delivery is acked after
// handling; handling itself records its outcome in the job table, so a
// crash-free worker never strands a job in processing.
func (w *Worker) Start(ctx context.Context) error {
	deliveries, err := w.source.Consume()
	if err != nil {
		return fmt.Errorf("consume jobs: %w", err)
	}

	w.logger.Info("worker started", "job_timeout", w.jobTimeout)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("job channel closed")
			}

			var msg queue.JobMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				w.logger.Error("discarding malformed job message", "error", err)
				_ = delivery.Nack(false, false)
				continue
			}

			w.Handle(ctx, &msg)
			_ = delivery.Ack(false)
		}
	}
}

// Handle executes one job under the wall-clock budget and records the
// terminal status. Panics escaping the workflow are caught here so the job
// row always leaves processing.
func (w *Worker) Handle(ctx context.Context, msg *queue.JobMessage) {
	logger := w.logger.With("job_id", msg.JobID)
	logger.Info("picked up job", "rss_url", msg.RSSURL)

	if err := w.jobs.UpdateStatus(ctx, msg.JobID, domain.JobProcessing, nil, nil); err != nil {
		logger.Error("failed to mark job processing", "error", err)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result, err := w.runJob(runCtx, msg)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("job timed out after %s", w.jobTimeout)
		}
		w.finish(ctx, msg.JobID, domain.JobFailed, nil, err.Error())
		logger.Info("finished processing job", "status", domain.JobFailed)
		return
	}

	output, marshalErr := json.Marshal(result.Episodes)
	if marshalErr != nil {
		w.finish(ctx, msg.JobID, domain.JobFailed, nil, fmt.Sprintf("serialize job output: %v", marshalErr))
		logger.Info("finished processing job", "status", domain.JobFailed)
		return
	}

	w.finish(ctx, msg.JobID, domain.JobCompleted, strPtr(string(output)), "")
	logger.Info("finished processing job", "status", domain.JobCompleted, "episodes", len(result.Episodes))
}

func (w *Worker) runJob(ctx context.Context, msg *queue.JobMessage) (result *workflow.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while running job", "job_id", msg.JobID, "panic", r)
			result = nil
			err = fmt.Errorf("unhandled error in worker: %v", r)
		}
	}()

	runner, err := w.newRunner(msg)
	if err != nil {
		return nil, fmt.Errorf("build workflow: %w", err)
	}

	return runner.Run(ctx, workflow.Request{
		RSSURL:         msg.RSSURL,
		NumEpisodes:    msg.NumEpisodes,
		SampleDuration: msg.SampleDuration,
	})
}

func (w *Worker) finish(ctx context.Context, jobID string, status domain.JobStatus, output *string, errMsg string) {
	var errPtr *string
	if errMsg != "" {
		errPtr = &errMsg
	}
	if err := w.jobs.UpdateStatus(ctx, jobID, status, output, errPtr); err != nil {
		w.logger.Error("failed to record job outcome", "job_id", jobID, "status", status, "error", err)
	}
}

func strPtr(s string) *string { return &s }
