package matching

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"psmcli/internal/dataset"
)

// matchSubclass stratifies the propensity-score range into quantile bins
// and treats each bin as one matched set. A bin missing either treatment
// group makes the configuration infeasible: collapsing or reassigning
// would silently shift the estimand.
func (e *Engine) matchSubclass(pop *dataset.Population, scores []float64, opts Options) (*MatchedSample, error) {
	k := opts.Subclasses
	if k > pop.Len()/2 {
		return nil, fmt.Errorf("%w: %d subclasses for %d units", ErrInfeasibleMatching, k, pop.Len())
	}

	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	// Upper cut points at quantiles 1/k .. (k-1)/k; the last bin is open.
	cuts := make([]float64, k-1)
	for j := 1; j < k; j++ {
		cuts[j-1] = stat.Quantile(float64(j)/float64(k), stat.Empirical, sorted, nil)
	}

	bin := func(s float64) int {
		for j, cut := range cuts {
			if s <= cut {
				return j
			}
		}
		return k - 1
	}

	sets := make([]MatchedSet, k)
	for i, u := range pop.Units {
		b := bin(scores[i])
		if u.Treated {
			sets[b].Treated = append(sets[b].Treated, i)
		} else {
			sets[b].Controls = append(sets[b].Controls, i)
		}
	}

	for j, set := range sets {
		if len(set.Treated) == 0 {
			return nil, fmt.Errorf("%w: subclass %d/%d has no treated units", ErrInfeasibleMatching, j+1, k)
		}
		if len(set.Controls) == 0 {
			return nil, fmt.Errorf("%w: subclass %d/%d has no control units", ErrInfeasibleMatching, j+1, k)
		}
	}

	sample := &MatchedSample{Policy: PolicySubclass, Sets: sets}
	sample.Weights = attWeights(pop.Len(), sets)
	return sample, nil
}
