package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
	"github.com/SkyChan0819/ntu-admin-helper/internal/infra/logger"
	"github.com/SkyChan0819/ntu-admin-helper/internal/usecase/retrieval"
)

// Identity optionally narrows a query to the asker's college and degree
// program. Regulations frequently differ per college.
type Identity struct {
	College string
	Degree  string
}

// RetrieveContextInput defines the input parameters for RetrieveContext.
type RetrieveContextInput struct {
	Query    string
	Identity *Identity
}

// RetrieveContextOutput is the ranked, unit-scoped context set handed to
// answer generation, plus the intermediate results callers may surface.
type RetrieveContextOutput struct {
	Contexts       domain.RankedContext
	Units          domain.UnitSet
	Intent         retrieval.Intent
	RetrievalSetID string
}

// RetrieveContextUsecase runs the two-stage retrieval pipeline. It is a
// pure function of (query, identity, store snapshot): no state is carried
// between calls.
type RetrieveContextUsecase interface {
	Execute(ctx context.Context, input RetrieveContextInput) (*RetrieveContextOutput, error)
}

type retrieveContextUsecase struct {
	store   domain.PassageStore
	encoder domain.VectorEncoder
	cfg     RetrievalConfig
	logger  *slog.Logger
}

// NewRetrieveContextUsecase creates a new RetrieveContextUsecase.
func NewRetrieveContextUsecase(
	store domain.PassageStore,
	encoder domain.VectorEncoder,
	cfg RetrievalConfig,
	logger *slog.Logger,
) RetrieveContextUsecase {
	return &retrieveContextUsecase{
		store:   store,
		encoder: encoder,
		cfg:     cfg,
		logger:  logger,
	}
}

func (u *retrieveContextUsecase) Execute(ctx context.Context, input RetrieveContextInput) (*RetrieveContextOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("query is empty")
	}

	retrievalSetID := uuid.New().String()
	ctx = logger.WithRetrievalSetID(ctx, retrievalSetID)
	searchQuery := applyIdentity(input.Query, input.Identity)
	intent := retrieval.ClassifyIntent(input.Query)

	embeddings, err := u.encoder.Encode(ctx, []string{searchQuery})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}
	queryVector := embeddings[0]

	// Stage 1: broad, unfiltered search across the whole store.
	stage1, err := u.broadSearch(ctx, queryVector)
	if err != nil {
		return nil, err
	}
	u.logger.InfoContext(ctx, "stage1_completed",
		slog.Int("candidate_count", len(stage1)),
		slog.String("intent", string(intent)))

	units := retrieval.ResolveUnits(stage1)
	u.logger.InfoContext(ctx, "units_resolved",
		slog.Any("units", units.IDs()))

	// Stage 2: unit-scoped retrieval. With no unit signal the pipeline
	// degrades to the stage-1 candidates directly, which is a documented
	// fallback rather than an error.
	candidates := stage1
	if len(units) > 0 {
		scoped, err := u.scopedSearch(ctx, queryVector, units)
		if err != nil {
			return nil, err
		}
		if len(scoped) > 0 {
			candidates = scoped
		} else {
			u.logger.WarnContext(ctx, "stage2_empty_falling_back")
		}
	} else {
		u.logger.WarnContext(ctx, "no_unit_signal_falling_back")
	}

	contexts := retrieval.Compose(candidates, intent, u.cfg.MaxContext)
	u.logger.InfoContext(ctx, "context_composed",
		slog.Int("context_count", len(contexts)))

	return &RetrieveContextOutput{
		Contexts:       contexts,
		Units:          units,
		Intent:         intent,
		RetrievalSetID: retrievalSetID,
	}, nil
}

func (u *retrieveContextUsecase) broadSearch(ctx context.Context, queryVector []float32) ([]domain.ScoredPassage, error) {
	var results []domain.ScoredPassage
	err := u.withStoreRetry(ctx, "stage1", func(callCtx context.Context) error {
		var searchErr error
		results, searchErr = u.store.SimilaritySearch(callCtx, queryVector, nil, u.cfg.BroadK)
		return searchErr
	})
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Stage = domain.StageBroad
	}
	return results, nil
}

func (u *retrieveContextUsecase) scopedSearch(ctx context.Context, queryVector []float32, units domain.UnitSet) ([]domain.ScoredPassage, error) {
	scopedCfg := retrieval.ScopedSearchConfig{
		MaxUnits: u.cfg.MaxUnits,
		PerUnitK: u.cfg.PerUnitK,
	}
	var results []domain.ScoredPassage
	err := u.withStoreRetry(ctx, "stage2", func(callCtx context.Context) error {
		var searchErr error
		results, searchErr = retrieval.ScopedSearch(callCtx, u.store, queryVector, units, scopedCfg, u.logger)
		return searchErr
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// withStoreRetry retries store-level failures (unavailable, timeout) a
// bounded number of times, then surfaces them. Other errors are returned
// immediately. Each attempt gets its own deadline.
func (u *retrieveContextUsecase) withStoreRetry(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= u.cfg.StoreRetries; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc = func() {}
		if u.cfg.StoreTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, u.cfg.StoreTimeout)
		}
		err = fn(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrStoreUnavailable) && !errors.Is(err, domain.ErrStoreTimeout) {
			return err
		}
		if attempt < u.cfg.StoreRetries {
			u.logger.WarnContext(ctx, "store_call_retrying",
				slog.String("stage", stage),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return err
			case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
			}
		}
	}
	return fmt.Errorf("%s search failed after %d retries: %w", stage, u.cfg.StoreRetries, err)
}

// applyIdentity appends the asker's college and degree context to the
// search query. Passages carry no college metadata, so identity narrows
// by query text the same way the scraped regulations phrase it.
func applyIdentity(query string, id *Identity) string {
	if id == nil {
		return query
	}
	var b strings.Builder
	b.WriteString(query)
	if strings.Contains(id.College, "醫學院") || strings.Contains(id.College, "公共衛生") {
		b.WriteString(" (醫學院/公衛學院規定)")
	}
	if id.Degree != "" {
		b.WriteString(" (")
		b.WriteString(id.Degree)
		b.WriteString(")")
	}
	return b.String()
}
