package matching

import (
	"sort"

	"psmcli/internal/dataset"
)

// matchNearest implements greedy nearest-neighbor matching without
// replacement. Treated units are processed in input order, or in
// descending score order when configured; each takes the closest
// still-unmatched control. Ties break on control input order. Treated
// units left over once the control pool is exhausted are dropped and
// counted.
func (e *Engine) matchNearest(pop *dataset.Population, scores []float64, opts Options) (*MatchedSample, error) {
	treated := pop.TreatedIndices()
	controls := pop.ControlIndices()

	if opts.OrderByScore {
		// Stable sort keeps input order among equal scores.
		treated = append([]int(nil), treated...)
		sort.SliceStable(treated, func(a, b int) bool {
			return scores[treated[a]] > scores[treated[b]]
		})
	}

	available := append([]int(nil), controls...)
	sample := &MatchedSample{Policy: PolicyNearest}

	for _, t := range treated {
		if len(available) == 0 {
			sample.DroppedTreated++
			continue
		}
		best := 0
		bestDist := distance(scores, t, available[0])
		for k := 1; k < len(available); k++ {
			if d := distance(scores, t, available[k]); d < bestDist {
				best, bestDist = k, d
			}
		}
		c := available[best]
		available = append(available[:best], available[best+1:]...)

		sample.Sets = append(sample.Sets, MatchedSet{Treated: []int{t}, Controls: []int{c}})
		sample.TotalDistance += bestDist
	}

	sample.Weights = attWeights(pop.Len(), sample.Sets)
	return sample, nil
}
