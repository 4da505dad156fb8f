package retrieval

import (
	"sort"

	"github.com/google/uuid"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

// Compose merges stage-2 candidates into the final RankedContext:
// deduplicate by passage identity keeping the highest score seen, order
// the category matching the query intent first, and truncate to maxSize.
// Reordering is stable: relative score order within a category is never
// rewritten, only the category blocks move.
func Compose(candidates []domain.ScoredPassage, intent Intent, maxSize int) domain.RankedContext {
	deduped := dedupeKeepMax(candidates)

	// Descending score, stable so equal scores keep candidate order.
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Score > deduped[j].Score
	})

	if preferred := intent.Category(); preferred != "" {
		deduped = liftCategory(deduped, preferred)
	}

	if maxSize > 0 && len(deduped) > maxSize {
		deduped = deduped[:maxSize]
	}
	return domain.RankedContext(deduped)
}

func dedupeKeepMax(candidates []domain.ScoredPassage) []domain.ScoredPassage {
	index := make(map[uuid.UUID]int)
	out := make([]domain.ScoredPassage, 0, len(candidates))
	for _, cand := range candidates {
		if i, ok := index[cand.Passage.ID]; ok {
			if cand.Score > out[i].Score {
				out[i].Score = cand.Score
				out[i].Stage = cand.Stage
			}
			continue
		}
		index[cand.Passage.ID] = len(out)
		out = append(out, cand)
	}
	return out
}

// liftCategory moves the preferred category's passages to the front,
// preserving relative order inside both partitions.
func liftCategory(results []domain.ScoredPassage, preferred domain.Category) []domain.ScoredPassage {
	lifted := make([]domain.ScoredPassage, 0, len(results))
	var rest []domain.ScoredPassage
	for _, res := range results {
		if res.Passage.Category == preferred {
			lifted = append(lifted, res)
		} else {
			rest = append(rest, res)
		}
	}
	return append(lifted, rest...)
}
