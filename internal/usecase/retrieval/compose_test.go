package retrieval

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

func candidate(id uuid.UUID, category domain.Category, score float32, stage domain.Stage) domain.ScoredPassage {
	return domain.ScoredPassage{
		Passage: domain.Passage{ID: id, Category: category},
		Score:   score,
		Stage:   stage,
	}
}

func TestCompose_DeduplicatesKeepingMaxScore(t *testing.T) {
	shared := uuid.New()
	candidates := []domain.ScoredPassage{
		candidate(shared, domain.CategoryGeneral, 0.6, domain.StageBroad),
		candidate(uuid.New(), domain.CategoryGeneral, 0.5, domain.StageScoped),
		candidate(shared, domain.CategoryGeneral, 0.8, domain.StageScoped),
	}

	contexts := Compose(candidates, IntentGeneral, 10)

	require.Len(t, contexts, 2)
	assert.Equal(t, shared, contexts[0].Passage.ID)
	assert.InDelta(t, 0.8, float64(contexts[0].Score), 1e-6)
	assert.Equal(t, domain.StageScoped, contexts[0].Stage)
}

func TestCompose_OrdersByScoreDescending(t *testing.T) {
	candidates := []domain.ScoredPassage{
		candidate(uuid.New(), domain.CategoryGeneral, 0.3, domain.StageScoped),
		candidate(uuid.New(), domain.CategoryGeneral, 0.9, domain.StageScoped),
		candidate(uuid.New(), domain.CategoryGeneral, 0.6, domain.StageScoped),
	}

	contexts := Compose(candidates, IntentGeneral, 10)

	require.Len(t, contexts, 3)
	assert.InDelta(t, 0.9, float64(contexts[0].Score), 1e-6)
	assert.InDelta(t, 0.6, float64(contexts[1].Score), 1e-6)
	assert.InDelta(t, 0.3, float64(contexts[2].Score), 1e-6)
}

func TestCompose_LocationIntentLiftsLocationPassages(t *testing.T) {
	candidates := []domain.ScoredPassage{
		candidate(uuid.New(), domain.CategoryProcedure, 0.9, domain.StageScoped),
		candidate(uuid.New(), domain.CategoryLocation, 0.4, domain.StageScoped),
		candidate(uuid.New(), domain.CategoryProcedure, 0.7, domain.StageScoped),
		candidate(uuid.New(), domain.CategoryLocation, 0.3, domain.StageScoped),
	}

	contexts := Compose(candidates, IntentLocation, 10)

	require.Len(t, contexts, 4)
	// Location block first, internal score order preserved in both blocks.
	assert.Equal(t, domain.CategoryLocation, contexts[0].Passage.Category)
	assert.InDelta(t, 0.4, float64(contexts[0].Score), 1e-6)
	assert.Equal(t, domain.CategoryLocation, contexts[1].Passage.Category)
	assert.InDelta(t, 0.3, float64(contexts[1].Score), 1e-6)
	assert.Equal(t, domain.CategoryProcedure, contexts[2].Passage.Category)
	assert.InDelta(t, 0.9, float64(contexts[2].Score), 1e-6)
	assert.InDelta(t, 0.7, float64(contexts[3].Score), 1e-6)
}

func TestCompose_GeneralIntentDoesNotReorder(t *testing.T) {
	candidates := []domain.ScoredPassage{
		candidate(uuid.New(), domain.CategoryProcedure, 0.9, domain.StageScoped),
		candidate(uuid.New(), domain.CategoryLocation, 0.4, domain.StageScoped),
	}

	contexts := Compose(candidates, IntentGeneral, 10)

	require.Len(t, contexts, 2)
	assert.Equal(t, domain.CategoryProcedure, contexts[0].Passage.Category)
}

func TestCompose_TruncatesToMaxSize(t *testing.T) {
	var candidates []domain.ScoredPassage
	for i := 0; i < 12; i++ {
		candidates = append(candidates, candidate(uuid.New(), domain.CategoryGeneral, float32(i), domain.StageScoped))
	}

	contexts := Compose(candidates, IntentGeneral, 8)

	assert.Len(t, contexts, 8)
	// The strongest candidates survive truncation.
	assert.InDelta(t, 11, float64(contexts[0].Score), 1e-6)
}

func TestCompose_EmptyCandidates(t *testing.T) {
	assert.Empty(t, Compose(nil, IntentLocation, 8))
}
