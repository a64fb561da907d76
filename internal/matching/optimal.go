package matching

import (
	"fmt"
	"math"

	"psmcli/internal/dataset"
)

// matchOptimal implements globally optimal 1:k matching: the pairing that
// minimizes the summed score distance across all pairs, solved as a
// min-cost bipartite assignment. Each treated unit receives exactly
// opts.Ratio controls.
func (e *Engine) matchOptimal(pop *dataset.Population, scores []float64, opts Options) (*MatchedSample, error) {
	treated := pop.TreatedIndices()
	controls := pop.ControlIndices()

	slots := len(treated) * opts.Ratio
	if slots > len(controls) {
		return nil, fmt.Errorf("%w: %d treated x ratio %d needs %d controls, have %d",
			ErrInfeasibleMatching, len(treated), opts.Ratio, slots, len(controls))
	}

	// One row per control slot, in treated input order so tie-breaking
	// stays deterministic.
	cost := make([][]float64, slots)
	for r := range cost {
		t := treated[r/opts.Ratio]
		row := make([]float64, len(controls))
		for c, ctrl := range controls {
			row[c] = distance(scores, t, ctrl)
		}
		cost[r] = row
	}

	assign, total := minCostAssignment(cost)

	sample := &MatchedSample{Policy: PolicyOptimal, TotalDistance: total}
	for ti, t := range treated {
		set := MatchedSet{Treated: []int{t}}
		for k := 0; k < opts.Ratio; k++ {
			set.Controls = append(set.Controls, controls[assign[ti*opts.Ratio+k]])
		}
		sample.Sets = append(sample.Sets, set)
	}
	sample.Weights = attWeights(pop.Len(), sample.Sets)
	return sample, nil
}

// minCostAssignment solves the rectangular assignment problem for a dense
// cost matrix with rows <= cols using the Hungarian algorithm with
// potentials. Returns the assigned column per row and the total cost.
// Ties resolve to the lowest column index, keeping the result
// deterministic for identical inputs.
func minCostAssignment(cost [][]float64) ([]int, float64) {
	nRows := len(cost)
	nCols := len(cost[0])

	u := make([]float64, nRows+1)
	v := make([]float64, nCols+1)
	rowOf := make([]int, nCols+1) // rowOf[j]: row currently assigned to column j
	way := make([]int, nCols+1)

	for i := 1; i <= nRows; i++ {
		rowOf[0] = i
		j0 := 0
		minv := make([]float64, nCols+1)
		used := make([]bool, nCols+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}
		for {
			used[j0] = true
			i0 := rowOf[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= nCols; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= nCols; j++ {
				if used[j] {
					u[rowOf[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if rowOf[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			rowOf[j0] = rowOf[j1]
			j0 = j1
		}
	}

	assign := make([]int, nRows)
	total := 0.0
	for j := 1; j <= nCols; j++ {
		if rowOf[j] > 0 {
			assign[rowOf[j]-1] = j - 1
			total += cost[rowOf[j]-1][j-1]
		}
	}
	return assign, total
}
