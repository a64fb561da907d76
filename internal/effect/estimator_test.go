package effect

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psmcli/internal/dataset"
	"psmcli/internal/matching"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// pairedSample builds a population of n treated/control pairs with one
// covariate, plus the matched sample using every unit at weight 1.
// Outcomes come from the supplied function of (covariate, treated).
func pairedSample(n int, outcome func(x float64, treated bool) float64) (*dataset.Population, *matching.MatchedSample) {
	pop := &dataset.Population{Covariates: []string{"x"}}
	sample := &matching.MatchedSample{Policy: matching.PolicyNearest}
	for i := 0; i < n; i++ {
		x := float64(i + 1)
		pop.Units = append(pop.Units, dataset.Unit{
			ID: fmt.Sprintf("t%d", i+1), Covariates: []float64{x}, Treated: true,
			Outcome: outcome(x, true),
		})
		pop.Units = append(pop.Units, dataset.Unit{
			ID: fmt.Sprintf("c%d", i+1), Covariates: []float64{x},
			Outcome: outcome(x, false),
		})
		sample.Sets = append(sample.Sets, matching.MatchedSet{
			Treated:  []int{2 * i},
			Controls: []int{2*i + 1},
		})
	}
	sample.Weights = make([]float64, pop.Len())
	for i := range sample.Weights {
		sample.Weights[i] = 1
	}
	return pop, sample
}

func TestEstimateNullEffect(t *testing.T) {
	// Outcome depends on the covariate only; treatment must come out with
	// zero effect and no significance.
	pop, sample := pairedSample(12, func(x float64, _ bool) float64 {
		return 0.3 + 0.02*x
	})

	est, err := NewEstimator(testLogger()).Estimate(pop, sample)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, est.ATE, 1e-9)
	assert.Greater(t, est.PValue, 0.05)
}

func TestEstimateRecoversKnownEffect(t *testing.T) {
	// A 0.08 treatment lift over a covariate trend, with a deterministic
	// residual pattern orthogonal to treatment so the fit is not exact.
	i := 0
	pop, sample := pairedSample(12, func(x float64, treated bool) float64 {
		i++
		noise := 0.004
		if i%4 < 2 {
			noise = -0.004
		}
		y := 0.35 + 0.01*x + noise
		if treated {
			y += 0.08
		}
		return y
	})

	est, err := NewEstimator(testLogger()).Estimate(pop, sample)
	require.NoError(t, err)

	assert.InDelta(t, 0.08, est.ATE, 0.01)
	assert.Less(t, est.PValue, 0.05)
	assert.True(t, est.Significant(0.05))
	assert.Greater(t, est.SE, 0.0)
	assert.Equal(t, 24, est.N)
	assert.Equal(t, 24-3, est.DF)
}

func TestEstimateRespectsWeights(t *testing.T) {
	// Zero-weight units must not influence the estimate: poison them with
	// extreme outcomes and check the estimate matches the weighted subset.
	pop, sample := pairedSample(10, func(x float64, treated bool) float64 {
		if treated {
			return 0.6
		}
		return 0.5
	})
	// Corrupt two units and exclude them.
	pop.Units[0].Outcome = 1.0
	pop.Units[1].Outcome = 0.0
	sample.Weights[0] = 0
	sample.Weights[1] = 0

	est, err := NewEstimator(testLogger()).Estimate(pop, sample)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, est.ATE, 1e-9)
}

func TestEstimateDegenerateSample(t *testing.T) {
	pop, sample := pairedSample(1, func(x float64, treated bool) float64 { return 0.5 })

	_, err := NewEstimator(testLogger()).Estimate(pop, sample)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDegenerateSample)
}

func TestEstimateWeightCountMismatch(t *testing.T) {
	pop, sample := pairedSample(6, func(x float64, treated bool) float64 { return 0.5 })
	sample.Weights = sample.Weights[:3]

	_, err := NewEstimator(testLogger()).Estimate(pop, sample)
	assert.Error(t, err)
}

func TestEstimateExactFitReportsNoEvidence(t *testing.T) {
	// Constant outcome: the regression fits exactly, so the t statistic is
	// defined as 0 and the p-value as 1.
	pop, sample := pairedSample(8, func(x float64, treated bool) float64 { return 0.5 })

	est, err := NewEstimator(testLogger()).Estimate(pop, sample)
	require.NoError(t, err)
	assert.Equal(t, 0.0, est.TStat)
	assert.Equal(t, 1.0, est.PValue)
	assert.True(t, math.Abs(est.ATE) < 1e-9)
}
