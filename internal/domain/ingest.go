package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IngestJob is a queued request to (re)index the passages of one source
// document produced by the offline scraping pipeline.
type IngestJob struct {
	ID           uuid.UUID
	Payload      map[string]interface{}
	Status       string // new, processing, completed, failed
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IngestJobRepository persists and dispenses ingest jobs.
type IngestJobRepository interface {
	Enqueue(ctx context.Context, job *IngestJob) error
	// AcquireNextJob atomically claims the oldest new job, marking it
	// processing. Returns nil, nil when the queue is empty.
	AcquireNextJob(ctx context.Context) (*IngestJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error
}
