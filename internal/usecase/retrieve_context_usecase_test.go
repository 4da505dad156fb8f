package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
	"github.com/SkyChan0819/ntu-admin-helper/internal/usecase/retrieval"
)

// --- fakes ---

type fakeEncoder struct {
	mu       sync.Mutex
	captured []string
	err      error
}

func (e *fakeEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.captured = append(e.captured, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (e *fakeEncoder) Version() string { return "fake" }

type fakeSearchStore struct {
	mu    sync.Mutex
	byKey map[string][]domain.ScoredPassage // unit|category
	errs  map[string]error
	calls int
}

func searchKey(filter *domain.SearchFilter) string {
	if filter == nil {
		return "|"
	}
	return filter.Unit + "|" + string(filter.Category)
}

func (s *fakeSearchStore) SimilaritySearch(ctx context.Context, queryVector []float32, filter *domain.SearchFilter, limit int) ([]domain.ScoredPassage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.errs[searchKey(filter)]; ok {
		return nil, err
	}
	results := s.byKey[searchKey(filter)]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *fakeSearchStore) DeleteBySource(ctx context.Context, sourceURL string) error { return nil }

func (s *fakeSearchStore) BulkInsert(ctx context.Context, passages []domain.Passage) error {
	return nil
}

func passage(unit string, category domain.Category, text string, score float32) domain.ScoredPassage {
	return domain.ScoredPassage{
		Passage: domain.Passage{
			ID:       uuid.New(),
			Text:     text,
			Unit:     unit,
			UnitName: unit,
			Category: category,
		},
		Score: score,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testConfig() RetrievalConfig {
	cfg := DefaultRetrievalConfig()
	cfg.StoreTimeout = 0 // per-call deadlines are not under test here
	return cfg
}

// --- tests ---

func TestRetrieveContext_TwoStagePipeline(t *testing.T) {
	store := &fakeSearchStore{
		byKey: map[string][]domain.ScoredPassage{
			// Stage 1: broad search points at the registration division.
			"|": {
				passage("registration_division", domain.CategoryProcedure, "休學申請規定", 0.9),
				passage("registration_division", domain.CategoryGeneral, "註冊組業務", 0.8),
				passage("cashier_division", domain.CategoryGeneral, "繳費說明", 0.3),
			},
			// Stage 2: unit-scoped results.
			"registration_division|": {
				passage("registration_division", domain.CategoryLocation, "註冊組位於行政大樓一樓", 0.7),
				passage("registration_division", domain.CategoryProcedure, "休學申請應於學期開始前辦理", 0.85),
			},
			"cashier_division|": {
				passage("cashier_division", domain.CategoryGeneral, "出納組掛號說明", 0.2),
			},
		},
	}
	uc := NewRetrieveContextUsecase(store, &fakeEncoder{}, testConfig(), quietLogger())

	output, err := uc.Execute(context.Background(), RetrieveContextInput{Query: "休學要去哪裡辦"})

	require.NoError(t, err)
	assert.NotEmpty(t, output.RetrievalSetID)
	assert.Equal(t, retrieval.IntentLocation, output.Intent)

	require.NotEmpty(t, output.Units)
	assert.Equal(t, "registration_division", output.Units[0].ID)

	require.NotEmpty(t, output.Contexts)
	// Location intent puts the 在哪裡 answer first.
	assert.Equal(t, domain.CategoryLocation, output.Contexts[0].Passage.Category)
	assert.Contains(t, output.Contexts[0].Passage.Text, "行政大樓")
	for _, res := range output.Contexts {
		assert.Equal(t, domain.StageScoped, res.Stage, "stage-2 results must replace stage-1 candidates")
	}
}

func TestRetrieveContext_RepeatedRunsYieldSameResults(t *testing.T) {
	store := &fakeSearchStore{
		byKey: map[string][]domain.ScoredPassage{
			"|": {
				passage("registration_division", domain.CategoryProcedure, "休學申請規定", 0.9),
				passage("registration_division", domain.CategoryGeneral, "註冊組業務", 0.8),
				passage("cashier_division", domain.CategoryGeneral, "繳費說明", 0.3),
			},
			"registration_division|": {
				passage("registration_division", domain.CategoryLocation, "註冊組位於行政大樓一樓", 0.7),
				passage("registration_division", domain.CategoryProcedure, "休學申請應於學期開始前辦理", 0.85),
			},
			"cashier_division|": {
				passage("cashier_division", domain.CategoryGeneral, "出納組掛號說明", 0.2),
			},
		},
	}
	uc := NewRetrieveContextUsecase(store, &fakeEncoder{}, testConfig(), quietLogger())
	input := RetrieveContextInput{Query: "休學要去哪裡辦"}

	first, err := uc.Execute(context.Background(), input)
	require.NoError(t, err)
	second, err := uc.Execute(context.Background(), input)
	require.NoError(t, err)

	// With an unchanged store the pipeline carries no state between runs:
	// the resolved units match as sets and the final passages match in
	// identity and order.
	assert.ElementsMatch(t, first.Units.IDs(), second.Units.IDs())
	assert.Equal(t, first.Intent, second.Intent)
	require.Equal(t, len(first.Contexts), len(second.Contexts))
	for i := range first.Contexts {
		assert.Equal(t, first.Contexts[i].Passage.ID, second.Contexts[i].Passage.ID)
	}
	assert.NotEqual(t, first.RetrievalSetID, second.RetrievalSetID,
		"each run gets its own retrieval set ID")
}

func TestRetrieveContext_EmptyQueryRejected(t *testing.T) {
	uc := NewRetrieveContextUsecase(&fakeSearchStore{}, &fakeEncoder{}, testConfig(), quietLogger())

	_, err := uc.Execute(context.Background(), RetrieveContextInput{Query: "   "})
	require.Error(t, err)
}

func TestRetrieveContext_NoUnitSignalFallsBackToStage1(t *testing.T) {
	stage1 := []domain.ScoredPassage{
		passage("", domain.CategoryGeneral, "今天天氣很好", 0.4),
	}
	store := &fakeSearchStore{
		byKey: map[string][]domain.ScoredPassage{"|": stage1},
	}
	uc := NewRetrieveContextUsecase(store, &fakeEncoder{}, testConfig(), quietLogger())

	output, err := uc.Execute(context.Background(), RetrieveContextInput{Query: "天氣"})

	require.NoError(t, err)
	assert.Empty(t, output.Units)
	require.Len(t, output.Contexts, 1)
	assert.Equal(t, domain.StageBroad, output.Contexts[0].Stage)
}

func TestRetrieveContext_EmptyScopedResultsFallBackToStage1(t *testing.T) {
	store := &fakeSearchStore{
		byKey: map[string][]domain.ScoredPassage{
			"|": {
				passage("registration_division", domain.CategoryGeneral, "註冊組業務", 0.8),
			},
			// The unit's passages were deleted between stages.
			"registration_division|": {},
		},
	}
	uc := NewRetrieveContextUsecase(store, &fakeEncoder{}, testConfig(), quietLogger())

	output, err := uc.Execute(context.Background(), RetrieveContextInput{Query: "註冊組"})

	require.NoError(t, err)
	require.Len(t, output.Contexts, 1)
	assert.Equal(t, domain.StageBroad, output.Contexts[0].Stage)
}

func TestRetrieveContext_EmptyStoreYieldsEmptyContexts(t *testing.T) {
	store := &fakeSearchStore{byKey: map[string][]domain.ScoredPassage{}}
	uc := NewRetrieveContextUsecase(store, &fakeEncoder{}, testConfig(), quietLogger())

	output, err := uc.Execute(context.Background(), RetrieveContextInput{Query: "休學"})

	require.NoError(t, err)
	assert.Empty(t, output.Contexts)
	assert.Empty(t, output.Units)
}

func TestRetrieveContext_StoreFailureRetriedThenSurfaced(t *testing.T) {
	store := &fakeSearchStore{
		errs: map[string]error{"|": domain.ErrStoreUnavailable},
	}
	cfg := testConfig()
	cfg.StoreRetries = 2
	uc := NewRetrieveContextUsecase(store, &fakeEncoder{}, cfg, quietLogger())

	_, err := uc.Execute(context.Background(), RetrieveContextInput{Query: "休學"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 3, store.calls, "initial attempt plus two retries")
}

func TestRetrieveContext_NonStoreErrorNotRetried(t *testing.T) {
	store := &fakeSearchStore{
		errs: map[string]error{"|": errors.New("bad vector dimension")},
	}
	uc := NewRetrieveContextUsecase(store, &fakeEncoder{}, testConfig(), quietLogger())

	_, err := uc.Execute(context.Background(), RetrieveContextInput{Query: "休學"})

	require.Error(t, err)
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.calls)
}

func TestRetrieveContext_EncoderFailureSurfaces(t *testing.T) {
	uc := NewRetrieveContextUsecase(&fakeSearchStore{}, &fakeEncoder{err: errors.New("embedder down")}, testConfig(), quietLogger())

	_, err := uc.Execute(context.Background(), RetrieveContextInput{Query: "休學"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode")
}

func TestRetrieveContext_IdentityAppendedToSearchQueryOnly(t *testing.T) {
	encoder := &fakeEncoder{}
	store := &fakeSearchStore{byKey: map[string][]domain.ScoredPassage{}}
	uc := NewRetrieveContextUsecase(store, encoder, testConfig(), quietLogger())

	_, err := uc.Execute(context.Background(), RetrieveContextInput{
		Query:    "休學申請",
		Identity: &Identity{College: "醫學院", Degree: "碩士班"},
	})

	require.NoError(t, err)
	encoder.mu.Lock()
	defer encoder.mu.Unlock()
	require.Len(t, encoder.captured, 1)
	assert.Contains(t, encoder.captured[0], "休學申請")
	assert.Contains(t, encoder.captured[0], "醫學院/公衛學院規定")
	assert.Contains(t, encoder.captured[0], "碩士班")
}

func TestApplyIdentity(t *testing.T) {
	assert.Equal(t, "休學", applyIdentity("休學", nil))
	// Only the medical/public-health colleges carry distinct regulations
	// worth narrowing the search with.
	assert.Equal(t, "休學",
		applyIdentity("休學", &Identity{College: "工學院"}))
	assert.Equal(t, "休學 (醫學院/公衛學院規定)",
		applyIdentity("休學", &Identity{College: "公共衛生學院"}))
	assert.Equal(t, "休學 (學士班)",
		applyIdentity("休學", &Identity{Degree: "學士班"}))
}
