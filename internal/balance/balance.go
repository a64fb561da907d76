// Package balance computes covariate balance diagnostics for matched
// samples: per-covariate standardized mean differences and variance
// ratios, before and after matching. Pure computation over an immutable
// population and a weight vector.
package balance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"psmcli/internal/dataset"
	"psmcli/internal/matching"
)

// Row is the diagnostic for one covariate. SMDs use the pooled unweighted
// standard deviation of the pre-match sample as denominator for both the
// pre and post statistic, so the two are directly comparable.
type Row struct {
	Covariate    string  `json:"covariate"`
	PreSMD       float64 `json:"pre_smd"`
	PostSMD      float64 `json:"post_smd"`
	PreVarRatio  float64 `json:"pre_var_ratio"`
	PostVarRatio float64 `json:"post_var_ratio"`
	Improved     bool    `json:"improved"`
}

// Table is the full diagnostic: one row per covariate plus the list of
// covariates whose absolute SMD worsened after matching. Worsening is
// flagged, not failed; individual exceptions are expected on covariates
// that were nearly balanced to begin with.
type Table struct {
	Rows     []Row    `json:"rows"`
	Worsened []string `json:"worsened"`
}

// MaxPostSMD returns the largest absolute post-match SMD.
func (t *Table) MaxPostSMD() float64 {
	max := 0.0
	for _, r := range t.Rows {
		if abs := math.Abs(r.PostSMD); abs > max {
			max = abs
		}
	}
	return max
}

// Compute builds the balance table for a matched sample.
func Compute(pop *dataset.Population, sample *matching.MatchedSample) (*Table, error) {
	if len(sample.Weights) != pop.Len() {
		return nil, fmt.Errorf("balance: %d weights for %d units", len(sample.Weights), pop.Len())
	}

	unweighted := make([]float64, pop.Len())
	for i := range unweighted {
		unweighted[i] = 1
	}

	table := &Table{}
	for j, name := range pop.Covariates {
		col := pop.Column(j)

		preSMD, preVR := groupDiff(col, pop, unweighted, 0)
		// The pre-match pooled SD is reused post-match.
		pooled := pooledSD(col, pop, unweighted)
		postSMD, postVR := groupDiff(col, pop, sample.Weights, pooled)

		row := Row{
			Covariate:    name,
			PreSMD:       preSMD,
			PostSMD:      postSMD,
			PreVarRatio:  preVR,
			PostVarRatio: postVR,
			Improved:     math.Abs(postSMD) <= math.Abs(preSMD)+1e-12,
		}
		table.Rows = append(table.Rows, row)
		if !row.Improved {
			table.Worsened = append(table.Worsened, name)
		}
	}
	return table, nil
}

// groupDiff computes the standardized mean difference and variance ratio
// for one covariate under the given weights. A zero denom means the pooled
// SD should be computed from the weights themselves (the pre-match case).
func groupDiff(col []float64, pop *dataset.Population, weights []float64, denom float64) (smd, varRatio float64) {
	tx, tw := groupValues(col, pop, weights, true)
	cx, cw := groupValues(col, pop, weights, false)
	if len(tx) == 0 || len(cx) == 0 {
		return 0, 0
	}

	meanT := stat.Mean(tx, tw)
	meanC := stat.Mean(cx, cw)
	varT := stat.Variance(tx, tw)
	varC := stat.Variance(cx, cw)

	if denom == 0 {
		denom = math.Sqrt((varT + varC) / 2)
	}
	if denom > 0 {
		smd = (meanT - meanC) / denom
	}
	if varC > 0 {
		varRatio = varT / varC
	}
	return smd, varRatio
}

// pooledSD is the pooled standard deviation sqrt((s2T+s2C)/2).
func pooledSD(col []float64, pop *dataset.Population, weights []float64) float64 {
	tx, tw := groupValues(col, pop, weights, true)
	cx, cw := groupValues(col, pop, weights, false)
	if len(tx) < 2 || len(cx) < 2 {
		return 0
	}
	return math.Sqrt((stat.Variance(tx, tw) + stat.Variance(cx, cw)) / 2)
}

// groupValues extracts values and weights for one treatment arm, skipping
// zero-weight (unmatched) units.
func groupValues(col []float64, pop *dataset.Population, weights []float64, treated bool) (xs, ws []float64) {
	for i, u := range pop.Units {
		if u.Treated != treated || weights[i] <= 0 {
			continue
		}
		xs = append(xs, col[i])
		ws = append(ws, weights[i])
	}
	return xs, ws
}
