package retrieval

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

func scored(unit, unitName, text string, score float32) domain.ScoredPassage {
	return domain.ScoredPassage{
		Passage: domain.Passage{
			ID:       uuid.New(),
			Text:     text,
			Unit:     unit,
			UnitName: unitName,
		},
		Score: score,
		Stage: domain.StageBroad,
	}
}

func TestResolveUnits_SumsScoresPerUnit(t *testing.T) {
	candidates := []domain.ScoredPassage{
		scored("cashier_division", "出納組", "", 0.9),
		scored("registration_division", "註冊組", "", 0.8),
		scored("registration_division", "註冊組", "", 0.7),
	}

	units := ResolveUnits(candidates)

	require.Len(t, units, 2)
	// 0.8 + 0.7 beats a single 0.9
	assert.Equal(t, "registration_division", units[0].ID)
	assert.Equal(t, "註冊組", units[0].Name)
	assert.InDelta(t, 1.5, units[0].Score, 1e-6)
	assert.Equal(t, "cashier_division", units[1].ID)
	assert.InDelta(t, 0.9, units[1].Score, 1e-6)
}

func TestResolveUnits_MetadataWinsOverTextExtraction(t *testing.T) {
	candidates := []domain.ScoredPassage{
		// Text mentions another unit, but trusted metadata names this one.
		scored("registration_division", "註冊組", "出納組受理繳費。", 0.9),
	}

	units := ResolveUnits(candidates)

	require.Len(t, units, 1)
	assert.Equal(t, "registration_division", units[0].ID)
}

func TestResolveUnits_FallsBackToTextExtraction(t *testing.T) {
	candidates := []domain.ScoredPassage{
		scored("", "", "註冊組受理休學申請。", 0.9),
	}

	units := ResolveUnits(candidates)

	require.Len(t, units, 1)
	assert.Equal(t, "註冊組", units[0].ID)
	assert.Equal(t, "註冊組", units[0].Name)
}

func TestResolveUnits_DropsCandidatesWithNoSignal(t *testing.T) {
	candidates := []domain.ScoredPassage{
		scored("", "", "今天天氣很好", 0.9),
		scored("registration_division", "註冊組", "", 0.5),
	}

	units := ResolveUnits(candidates)

	require.Len(t, units, 1)
	assert.Equal(t, "registration_division", units[0].ID)
}

func TestResolveUnits_EmptyCandidatesYieldEmptySet(t *testing.T) {
	assert.Empty(t, ResolveUnits(nil))
	assert.Empty(t, ResolveUnits([]domain.ScoredPassage{}))
}

func TestResolveUnits_TieBrokenByFirstAppearance(t *testing.T) {
	candidates := []domain.ScoredPassage{
		scored("cashier_division", "出納組", "", 0.5),
		scored("registration_division", "註冊組", "", 0.5),
	}

	units := ResolveUnits(candidates)

	require.Len(t, units, 2)
	assert.Equal(t, "cashier_division", units[0].ID)
	assert.Equal(t, "registration_division", units[1].ID)
}
