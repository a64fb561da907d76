// Package effect estimates the average treatment effect on the matched
// sample via weighted least squares, and provides the offline power
// calculation used for pre-registration.
package effect

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"psmcli/internal/dataset"
	"psmcli/internal/matching"
)

// ErrDegenerateSample indicates the matched sample cannot support the
// outcome regression (no residual degrees of freedom or a singular
// weighted design).
var ErrDegenerateSample = errors.New("effect: degenerate matched sample")

// Estimate is the outcome-regression result. ATE is the coefficient on
// the treatment indicator; the p-value tests a two-sided null of zero
// effect with Student's t on DF degrees of freedom.
type Estimate struct {
	ATE          float64   `json:"ate"`
	SE           float64   `json:"se"`
	TStat        float64   `json:"t_stat"`
	PValue       float64   `json:"p_value"`
	DF           int       `json:"df"`
	N            int       `json:"n"`
	Names        []string  `json:"names"`
	Coefficients []float64 `json:"coefficients"`
}

// Significant reports whether the effect is significant at the given level.
func (e *Estimate) Significant(alpha float64) bool { return e.PValue < alpha }

// Estimator fits the weighted outcome regression.
type Estimator struct {
	logger *slog.Logger
}

// NewEstimator creates an effect estimator.
func NewEstimator(logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{logger: logger.With(slog.String("component", "effect"))}
}

// Estimate regresses outcome on treatment plus covariates over the
// positive-weight units of the matched sample.
func (e *Estimator) Estimate(pop *dataset.Population, sample *matching.MatchedSample) (*Estimate, error) {
	if len(sample.Weights) != pop.Len() {
		return nil, fmt.Errorf("%d weights for %d units", len(sample.Weights), pop.Len())
	}

	// Rows with positive weight only; zero-weight units were dropped by
	// the matching policy and carry no information.
	var rows []int
	for i, w := range sample.Weights {
		if w > 0 {
			rows = append(rows, i)
		}
	}

	p := len(pop.Covariates) + 2 // intercept + treatment
	n := len(rows)
	if n <= p {
		return nil, fmt.Errorf("%w: %d matched units for %d parameters", ErrDegenerateSample, n, p)
	}

	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	w := make([]float64, n)
	for r, idx := range rows {
		u := pop.Units[idx]
		x.Set(r, 0, 1)
		if u.Treated {
			x.Set(r, 1, 1)
		}
		for j, v := range u.Covariates {
			x.Set(r, j+2, v)
		}
		y.SetVec(r, u.Outcome)
		w[r] = sample.Weights[idx]
	}

	// Weighted normal equations.
	wx := mat.NewDense(n, p, nil)
	wy := mat.NewVecDense(n, nil)
	for r := 0; r < n; r++ {
		for j := 0; j < p; j++ {
			wx.Set(r, j, w[r]*x.At(r, j))
		}
		wy.SetVec(r, w[r]*y.AtVec(r))
	}
	var a mat.Dense
	a.Mul(x.T(), wx)
	var b mat.VecDense
	b.MulVec(x.T(), wy)

	var beta mat.VecDense
	if err := beta.SolveVec(&a, &b); err != nil {
		return nil, fmt.Errorf("%w: singular weighted design: %v", ErrDegenerateSample, err)
	}

	// Weighted residual variance and coefficient covariance.
	rss := 0.0
	for r := 0; r < n; r++ {
		fit := 0.0
		for j := 0; j < p; j++ {
			fit += x.At(r, j) * beta.AtVec(j)
		}
		resid := y.AtVec(r) - fit
		rss += w[r] * resid * resid
	}
	df := n - p
	sigma2 := rss / float64(df)

	var ainv mat.Dense
	if err := ainv.Inverse(&a); err != nil {
		return nil, fmt.Errorf("%w: covariance inversion: %v", ErrDegenerateSample, err)
	}

	ate := beta.AtVec(1)
	se := math.Sqrt(sigma2 * ainv.At(1, 1))

	var tstat, pval float64
	if se > 1e-12 {
		tstat = ate / se
		tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
		pval = 2 * (1 - tdist.CDF(math.Abs(tstat)))
	} else {
		// Exact fit: no evidence either way.
		tstat = 0
		pval = 1
	}

	names := append([]string{"(intercept)", "treatment"}, pop.Covariates...)
	coefs := make([]float64, p)
	for j := 0; j < p; j++ {
		coefs[j] = beta.AtVec(j)
	}

	e.logger.Info("effect estimated",
		slog.Float64("ate", ate),
		slog.Float64("se", se),
		slog.Float64("t", tstat),
		slog.Float64("p", pval),
		slog.Int("n", n),
		slog.Int("df", df),
	)
	return &Estimate{
		ATE:          ate,
		SE:           se,
		TStat:        tstat,
		PValue:       pval,
		DF:           df,
		N:            n,
		Names:        names,
		Coefficients: coefs,
	}, nil
}
