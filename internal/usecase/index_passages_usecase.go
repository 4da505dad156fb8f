package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

// PassageDraft is one processed chunk from the offline scraping pipeline,
// not yet embedded or persisted.
type PassageDraft struct {
	Text     string
	Unit     string
	UnitName string
	Category string
	Title    string
	Building string
	Floor    string
	Room     string
}

// IndexPassagesInput carries one source document's processed passages.
type IndexPassagesInput struct {
	SourceURL string
	Passages  []PassageDraft
}

// IndexPassagesUsecase embeds and persists a source's passages, replacing
// any previous rows for that source atomically.
type IndexPassagesUsecase interface {
	Execute(ctx context.Context, input IndexPassagesInput) error
}

type indexPassagesUsecase struct {
	store     domain.PassageStore
	txManager domain.TransactionManager
	encoder   domain.VectorEncoder
}

// NewIndexPassagesUsecase creates a new IndexPassagesUsecase.
func NewIndexPassagesUsecase(
	store domain.PassageStore,
	txManager domain.TransactionManager,
	encoder domain.VectorEncoder,
) IndexPassagesUsecase {
	return &indexPassagesUsecase{
		store:     store,
		txManager: txManager,
		encoder:   encoder,
	}
}

func (u *indexPassagesUsecase) Execute(ctx context.Context, input IndexPassagesInput) error {
	if strings.TrimSpace(input.SourceURL) == "" {
		return fmt.Errorf("source_url is required")
	}
	if len(input.Passages) == 0 {
		return fmt.Errorf("no passages to index")
	}

	texts := make([]string, len(input.Passages))
	for i, draft := range input.Passages {
		if strings.TrimSpace(draft.Text) == "" {
			return fmt.Errorf("passage %d has empty text", i)
		}
		texts[i] = draft.Text
	}

	embeddings, err := u.encoder.Encode(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to encode passages: %w", err)
	}
	if len(embeddings) != len(texts) {
		return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddings))
	}

	now := time.Now()
	encoderVersion := u.encoder.Version()
	passages := make([]domain.Passage, len(input.Passages))
	for i, draft := range input.Passages {
		passages[i] = domain.Passage{
			ID:              uuid.New(),
			Text:            draft.Text,
			Embedding:       pgvector.NewVector(embeddings[i]),
			Unit:            draft.Unit,
			UnitName:        draft.UnitName,
			Category:        domain.ParseCategory(draft.Category),
			Title:           draft.Title,
			SourceURL:       input.SourceURL,
			Building:        draft.Building,
			Floor:           draft.Floor,
			Room:            draft.Room,
			EmbedderVersion: encoderVersion,
			CreatedAt:       now,
		}
	}

	// Replace-source must be atomic: a reader should never observe the
	// source half-deleted or half-inserted.
	return u.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := u.store.DeleteBySource(txCtx, input.SourceURL); err != nil {
			return fmt.Errorf("failed to delete old passages: %w", err)
		}
		if err := u.store.BulkInsert(txCtx, passages); err != nil {
			return fmt.Errorf("failed to insert passages: %w", err)
		}
		return nil
	})
}
