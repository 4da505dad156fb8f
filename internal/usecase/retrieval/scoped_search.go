package retrieval

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

// categoryOversample widens each unit-scoped query so that category
// diversification has material to work with.
const categoryOversample = 3

// ScopedSearchConfig holds stage-2 parameters.
type ScopedSearchConfig struct {
	// MaxUnits bounds how many resolved units get their own scoped
	// search, keeping stage-2 cost flat regardless of stage-1 spread.
	MaxUnits int
	// PerUnitK is the maximum number of passages returned per unit.
	PerUnitK int
}

// ScopedSearch runs the stage-2 retrieval: one metadata-filtered search
// per resolved unit, restricted hard to that unit's passages. Per-unit
// searches run concurrently; results are merged in unit rank order so
// concurrency never changes output ordering.
//
// A unit yielding zero passages is skipped silently. Store-level failures
// (unavailable, timeout) abort the whole stage; any other per-unit error
// only drops that unit.
func ScopedSearch(
	ctx context.Context,
	store domain.PassageStore,
	queryVector []float32,
	units domain.UnitSet,
	cfg ScopedSearchConfig,
	logger *slog.Logger,
) ([]domain.ScoredPassage, error) {
	if len(units) == 0 {
		return nil, nil
	}
	if cfg.MaxUnits > 0 && len(units) > cfg.MaxUnits {
		units = units[:cfg.MaxUnits]
	}

	perUnit := make([][]domain.ScoredPassage, len(units))
	g, gctx := errgroup.WithContext(ctx)

	for i, unit := range units {
		i, unit := i, unit
		g.Go(func() error {
			results, err := searchUnit(gctx, store, queryVector, unit.ID, cfg.PerUnitK)
			if err != nil {
				if errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, domain.ErrStoreTimeout) {
					return err
				}
				logger.Warn("scoped_search_unit_skipped",
					slog.String("unit", unit.ID),
					slog.String("error", err.Error()))
				return nil
			}
			perUnit[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Deterministic merge by unit rank order.
	var merged []domain.ScoredPassage
	for i, results := range perUnit {
		if len(results) == 0 {
			logger.Debug("scoped_search_unit_empty", slog.String("unit", units[i].ID))
			continue
		}
		merged = append(merged, results...)
	}
	return merged, nil
}

// searchUnit retrieves one unit's passages and diversifies them across
// categories. The unit filter is a hard constraint enforced by the store;
// a unit-correct lower-scoring passage always beats a unit-foreign higher
// scorer because the latter never enters the candidate pool.
func searchUnit(
	ctx context.Context,
	store domain.PassageStore,
	queryVector []float32,
	unitID string,
	perUnitK int,
) ([]domain.ScoredPassage, error) {
	filter := &domain.SearchFilter{Unit: unitID}
	results, err := store.SimilaritySearch(ctx, queryVector, filter, perUnitK*categoryOversample)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Stage = domain.StageScoped
	}

	diversified := diversifyByCategory(results, perUnitK)

	// The oversampled window can still miss a unit's location passage
	// even though one exists; answering 在哪裡 without it is useless, so
	// top it up with a targeted lookup. The location hit takes the slot
	// of the lowest-scoring pick so the unit stays within perUnitK.
	if !containsCategory(diversified, domain.CategoryLocation) && len(diversified) > 0 {
		locFilter := &domain.SearchFilter{Unit: unitID, Category: domain.CategoryLocation}
		locs, err := store.SimilaritySearch(ctx, queryVector, locFilter, 1)
		if err == nil && len(locs) > 0 {
			locs[0].Stage = domain.StageScoped
			if len(diversified) >= perUnitK {
				diversified = dropLowestScore(diversified)
			}
			diversified = append(diversified, locs[0])
		}
	}
	return diversified, nil
}

// dropLowestScore returns a copy without the single lowest-scoring entry.
func dropLowestScore(results []domain.ScoredPassage) []domain.ScoredPassage {
	lowest := 0
	for i, res := range results {
		if res.Score < results[lowest].Score {
			lowest = i
		}
	}
	out := make([]domain.ScoredPassage, 0, len(results)-1)
	out = append(out, results[:lowest]...)
	out = append(out, results[lowest+1:]...)
	return out
}

// diversifyByCategory picks up to k passages preferring one from each
// category present before filling the rest by score. Input is already in
// descending score order, which both passes preserve.
func diversifyByCategory(results []domain.ScoredPassage, k int) []domain.ScoredPassage {
	if len(results) <= k {
		return results
	}

	picked := make([]domain.ScoredPassage, 0, k)
	taken := make(map[int]bool)
	seenCategory := make(map[domain.Category]bool)

	// Pass 1: best passage of each category, in score order.
	for i, res := range results {
		if len(picked) >= k {
			break
		}
		if seenCategory[res.Passage.Category] {
			continue
		}
		seenCategory[res.Passage.Category] = true
		taken[i] = true
		picked = append(picked, res)
	}

	// Pass 2: fill remaining slots by score.
	for i, res := range results {
		if len(picked) >= k {
			break
		}
		if taken[i] {
			continue
		}
		picked = append(picked, res)
	}
	return picked
}

func containsCategory(results []domain.ScoredPassage, cat domain.Category) bool {
	for _, res := range results {
		if res.Passage.Category == cat {
			return true
		}
	}
	return false
}
