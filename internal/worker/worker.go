package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
	"github.com/SkyChan0819/ntu-admin-helper/internal/infra/logger"
	"github.com/SkyChan0819/ntu-admin-helper/internal/usecase"
)

const (
	defaultPollInterval = 1 * time.Second
	jobTimeout          = 120 * time.Second
	initialBackoff      = 1 * time.Second
	maxBackoff          = 5 * time.Minute
)

// IngestWorker polls the ingest job queue and indexes queued passage
// batches. Failures back off exponentially so a broken embedder does not
// burn through the queue.
type IngestWorker struct {
	jobRepo      domain.IngestJobRepository
	indexUsecase usecase.IndexPassagesUsecase
	logger       *slog.Logger
	pollInterval time.Duration
	stopChan     chan struct{}
	backoff      time.Duration
}

func NewIngestWorker(
	jobRepo domain.IngestJobRepository,
	indexUsecase usecase.IndexPassagesUsecase,
	log *slog.Logger,
	pollInterval time.Duration,
) *IngestWorker {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &IngestWorker{
		jobRepo:      jobRepo,
		indexUsecase: indexUsecase,
		logger:       log,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
	}
}

func (w *IngestWorker) Start() {
	w.logger.Info("Starting IngestWorker")
	go w.run()
}

func (w *IngestWorker) Stop() {
	w.logger.Info("Stopping IngestWorker")
	close(w.stopChan)
}

func (w *IngestWorker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.processNextJob()
			if w.backoff > 0 {
				ticker.Reset(w.backoff)
			} else {
				ticker.Reset(w.pollInterval)
			}
		}
	}
}

func (w *IngestWorker) processNextJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	job, err := w.jobRepo.AcquireNextJob(ctx)
	if err != nil {
		w.logger.Error("Failed to acquire next job", "error", err)
		return
	}
	if job == nil {
		return // No jobs
	}

	ctx = logger.WithIngestJobID(ctx, job.ID.String())
	w.logger.InfoContext(ctx, "Processing job", "job_id", job.ID)

	processErr := w.processIndexJob(ctx, job)

	status := "completed"
	var errMsg *string
	if processErr != nil {
		status = "failed"
		msg := processErr.Error()
		errMsg = &msg
		w.backoff = w.nextBackoff(w.backoff)
		w.logger.WarnContext(ctx, "Worker backing off", "job_id", job.ID, "backoff", w.backoff, "error", processErr)
	} else {
		w.backoff = 0
		w.logger.InfoContext(ctx, "Job completed", "job_id", job.ID)
	}

	if err := w.jobRepo.UpdateStatus(ctx, job.ID, status, errMsg); err != nil {
		w.logger.ErrorContext(ctx, "Failed to update job status", "job_id", job.ID, "error", err)
	}
}

func (w *IngestWorker) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (w *IngestWorker) processIndexJob(ctx context.Context, job *domain.IngestJob) error {
	input, err := inputFromPayload(job.Payload)
	if err != nil {
		return err
	}
	return w.indexUsecase.Execute(ctx, *input)
}

// inputFromPayload decodes the JSONB payload written at enqueue time.
// Payloads come from our own HTTP handler, so unknown shapes indicate a
// version skew and fail the job rather than being silently skipped.
func inputFromPayload(payload map[string]interface{}) (*usecase.IndexPassagesInput, error) {
	sourceURL, ok := payload["source_url"].(string)
	if !ok || sourceURL == "" {
		return nil, fmt.Errorf("missing or invalid source_url")
	}
	rawPassages, ok := payload["passages"].([]interface{})
	if !ok || len(rawPassages) == 0 {
		return nil, fmt.Errorf("missing or invalid passages")
	}

	input := &usecase.IndexPassagesInput{SourceURL: sourceURL}
	for i, raw := range rawPassages {
		fields, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("passage %d has invalid shape", i)
		}
		text, _ := fields["text"].(string)
		if text == "" {
			return nil, fmt.Errorf("passage %d has empty text", i)
		}
		input.Passages = append(input.Passages, usecase.PassageDraft{
			Text:     text,
			Unit:     stringField(fields, "unit"),
			UnitName: stringField(fields, "unit_name"),
			Category: stringField(fields, "category"),
			Title:    stringField(fields, "title"),
			Building: stringField(fields, "building"),
			Floor:    stringField(fields, "floor"),
			Room:     stringField(fields, "room"),
		})
	}
	return input, nil
}

func stringField(fields map[string]interface{}, key string) string {
	value, _ := fields[key].(string)
	return value
}
