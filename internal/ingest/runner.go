package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the submission run parameters.
type Config struct {
	ChunksFile     string
	HelperURL      string
	CursorFile     string
	RatePerSecond  float64
	RequestTimeout time.Duration
	DryRun         bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunksFile:     "processed_chunks.json",
		HelperURL:      "http://localhost:9020",
		CursorFile:     "ingest_cursor.json",
		RatePerSecond:  2,
		RequestTimeout: 30 * time.Second,
	}
}

// Runner submits processed chunks to the helper's backfill endpoint,
// one source at a time, saving the cursor after each accepted batch.
type Runner struct {
	cfg     Config
	cursors *CursorManager
	limiter *rate.Limiter
	client  *http.Client
	logger  *slog.Logger
}

// NewRunner creates a Runner and acquires the cursor lock.
func NewRunner(cfg Config, logger *slog.Logger) (*Runner, error) {
	cursors := NewCursorManager(cfg.CursorFile)
	if err := cursors.Lock(); err != nil {
		return nil, err
	}
	return &Runner{
		cfg:     cfg,
		cursors: cursors,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger,
	}, nil
}

// Close releases the cursor lock.
func (r *Runner) Close() {
	_ = r.cursors.Unlock()
}

// GetCursor returns the persisted cursor.
func (r *Runner) GetCursor() (Cursor, error) {
	return r.cursors.Load()
}

// ResetCursor clears the persisted cursor.
func (r *Runner) ResetCursor() error {
	return r.cursors.Reset()
}

// Run loads the chunks file and submits every source batch not yet
// covered by the cursor.
func (r *Runner) Run(ctx context.Context) error {
	chunks, err := LoadChunks(r.cfg.ChunksFile)
	if err != nil {
		return err
	}
	batches := GroupBySource(chunks)

	cursor, err := r.cursors.Load()
	if err != nil {
		return err
	}

	start := 0
	if !cursor.IsEmpty() {
		for i, batch := range batches {
			if batch.SourceURL == cursor.LastSourceURL {
				start = i + 1
				break
			}
		}
		r.logger.Info("resuming from cursor",
			slog.String("last_source_url", cursor.LastSourceURL),
			slog.Int("remaining", len(batches)-start))
	}

	for i := start; i < len(batches); i++ {
		batch := batches[i]

		if r.cfg.DryRun {
			r.logger.Info("would submit",
				slog.String("source_url", batch.SourceURL),
				slog.Int("chunk_count", len(batch.Chunks)))
			continue
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := r.submitBatch(ctx, batch); err != nil {
			return fmt.Errorf("submit %s: %w", batch.SourceURL, err)
		}

		cursor.LastSourceURL = batch.SourceURL
		cursor.SubmittedCount++
		if err := r.cursors.Save(cursor); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}

		r.logger.Info("batch submitted",
			slog.String("source_url", batch.SourceURL),
			slog.Int("chunk_count", len(batch.Chunks)),
			slog.Int("submitted_total", cursor.SubmittedCount))
	}

	r.logger.Info("submission complete",
		slog.Int("batches", len(batches)-start),
		slog.Bool("dry_run", r.cfg.DryRun))
	return nil
}

func (r *Runner) submitBatch(ctx context.Context, batch SourceBatch) error {
	passages := make([]map[string]string, len(batch.Chunks))
	for i, c := range batch.Chunks {
		passages[i] = map[string]string{
			"text":      c.Text,
			"unit":      c.Metadata.Unit,
			"unit_name": c.Metadata.UnitName,
			"category":  c.Metadata.Category,
			"title":     c.Metadata.Title,
			"building":  c.Metadata.Building,
			"floor":     c.Metadata.Floor,
			"room":      c.Metadata.Room,
		}
	}
	payload := map[string]interface{}{
		"source_url": batch.SourceURL,
		"passages":   passages,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.cfg.HelperURL+"/internal/index/backfill", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
