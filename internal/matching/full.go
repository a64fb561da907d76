package matching

import (
	"psmcli/internal/dataset"
)

// matchFull partitions the whole population into disjoint sets, each with
// at least one treated and one control unit and every unit used exactly
// once. The construction is two-phase and deterministic: an optimal 1:1
// assignment seeds one set per minority-group unit, then each remaining
// majority-group unit attaches to the set whose minority anchor is
// nearest, ties resolving to the earlier set.
func (e *Engine) matchFull(pop *dataset.Population, scores []float64) (*MatchedSample, error) {
	treated := pop.TreatedIndices()
	controls := pop.ControlIndices()

	// Anchor on the smaller group so every unit can be placed.
	anchors, others := treated, controls
	anchorsTreated := true
	if len(controls) < len(treated) {
		anchors, others = controls, treated
		anchorsTreated = false
	}

	cost := make([][]float64, len(anchors))
	for r, a := range anchors {
		row := make([]float64, len(others))
		for c, o := range others {
			row[c] = distance(scores, a, o)
		}
		cost[r] = row
	}
	assign, total := minCostAssignment(cost)

	sets := make([]MatchedSet, len(anchors))
	assigned := make([]bool, len(others))
	for r, a := range anchors {
		o := others[assign[r]]
		assigned[assign[r]] = true
		if anchorsTreated {
			sets[r] = MatchedSet{Treated: []int{a}, Controls: []int{o}}
		} else {
			sets[r] = MatchedSet{Treated: []int{o}, Controls: []int{a}}
		}
	}

	// Attach leftover majority units to the nearest anchor's set.
	for k, o := range others {
		if assigned[k] {
			continue
		}
		best := 0
		bestDist := distance(scores, o, anchors[0])
		for s := 1; s < len(anchors); s++ {
			if d := distance(scores, o, anchors[s]); d < bestDist {
				best, bestDist = s, d
			}
		}
		if anchorsTreated {
			sets[best].Controls = append(sets[best].Controls, o)
		} else {
			sets[best].Treated = append(sets[best].Treated, o)
		}
		total += bestDist
	}

	sample := &MatchedSample{
		Policy:        PolicyFull,
		Sets:          sets,
		TotalDistance: total,
	}
	sample.Weights = attWeights(pop.Len(), sets)
	return sample, nil
}
