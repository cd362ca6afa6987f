package dispatcher

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"podcast_ingest/internal/domain"
	"podcast_ingest/internal/queue"
)

type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
}

type JobQueue interface {
	Publish(ctx context.Context, msg *queue.JobMessage) error
}
