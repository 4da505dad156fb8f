package retrieval

import (
	"sort"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

// ResolveUnits extracts the set of administrative units the stage-1
// candidates point at, ranked by the SUM of the contributing candidates'
// similarity scores. Sum rather than max: a unit named by several
// stage-1 passages should outrank a unit with a single marginally higher
// hit. Candidates without trusted unit metadata fall back to text-pattern
// extraction; candidates yielding no unit at all are dropped.
//
// The returned UnitSet is deduplicated and ordered descending by
// aggregate score, ties broken by first appearance in the candidate list.
func ResolveUnits(candidates []domain.ScoredPassage) domain.UnitSet {
	scores := make(map[string]float32)
	names := make(map[string]string)
	firstSeen := make(map[string]int)
	var ids []string

	add := func(id, name string, score float32) {
		if id == "" {
			return
		}
		if _, ok := firstSeen[id]; !ok {
			firstSeen[id] = len(ids)
			ids = append(ids, id)
		}
		scores[id] += score
		if names[id] == "" {
			names[id] = name
		}
	}

	for _, cand := range candidates {
		if unit := cand.Passage.Unit; unit != "" {
			add(unit, cand.Passage.UnitName, cand.Score)
			continue
		}
		// Metadata absent: mine the passage text for unit names.
		for _, name := range domain.ExtractUnitNames(cand.Passage.Text) {
			add(name, name, cand.Score)
		}
	}

	units := make(domain.UnitSet, 0, len(ids))
	for _, id := range ids {
		units = append(units, domain.ResolvedUnit{ID: id, Name: names[id], Score: scores[id]})
	}
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].Score > units[j].Score
	})
	return units
}
