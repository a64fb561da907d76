package propensity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"psmcli/internal/dataset"
)

// Sentinel errors for propensity model failures.
var (
	// ErrDegenerateFit indicates the model could not be fit: singular design
	// (perfect collinearity), non-finite coefficients, or perfect separation.
	ErrDegenerateFit = errors.New("propensity: degenerate fit")
	// ErrPositivityViolation indicates a fitted score of exactly 0 or 1.
	ErrPositivityViolation = errors.New("propensity: positivity violation")
)

// Link selects the GLM link function.
type Link string

const (
	// Logit uses the logistic link (the default for propensity models).
	Logit Link = "logit"
	// Probit uses the standard normal CDF link.
	Probit Link = "probit"
)

// IsValid reports whether the link is one of the supported values.
func (l Link) IsValid() bool { return l == Logit || l == Probit }

const (
	defaultMaxIterations = 50
	defaultTolerance     = 1e-9

	// Fitted probabilities this close to the boundary with a diverging fit
	// indicate perfect separation.
	saturationEps = 1e-8
)

// Result carries the fitted scores and the model summary. The model itself
// is not retained; coefficients are exposed for reporting only.
type Result struct {
	Scores       []float64 `json:"scores"`
	Coefficients []float64 `json:"coefficients"`
	Names        []string  `json:"names"`
	Iterations   int       `json:"iterations"`
	Converged    bool      `json:"converged"`
}

// Model fits treatment assignment on covariates.
type Model struct {
	link    Link
	maxIter int
	tol     float64
	logger  *slog.Logger
}

// NewModel creates a propensity model with the given link.
func NewModel(link Link, logger *slog.Logger) (*Model, error) {
	if !link.IsValid() {
		return nil, fmt.Errorf("unsupported link %q", link)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		link:    link,
		maxIter: defaultMaxIterations,
		tol:     defaultTolerance,
		logger:  logger.With(slog.String("component", "propensity")),
	}, nil
}

// Fit estimates the GLM by iteratively reweighted least squares and
// returns one score per unit, strictly inside (0,1).
func (m *Model) Fit(ctx context.Context, pop *dataset.Population) (*Result, error) {
	if err := pop.Validate(); err != nil {
		return nil, fmt.Errorf("validate population: %w", err)
	}

	n := pop.Len()
	p := len(pop.Covariates) + 1 // intercept
	if n <= p {
		return nil, fmt.Errorf("%w: %d units for %d parameters", ErrDegenerateFit, n, p)
	}

	x := designMatrix(pop)
	y := make([]float64, n)
	for i, u := range pop.Units {
		if u.Treated {
			y[i] = 1
		}
	}

	beta := make([]float64, p)
	eta := make([]float64, n)
	mu := make([]float64, n)
	w := make([]float64, n)
	z := make([]float64, n)

	var (
		iter      int
		converged bool
	)
	for iter = 1; iter <= m.maxIter; iter++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fit cancelled: %w", ctx.Err())
		default:
		}

		for i := 0; i < n; i++ {
			eta[i] = dot(x, i, beta)
			var deriv float64
			mu[i], deriv = m.meanAndDeriv(eta[i])
			v := mu[i] * (1 - mu[i])
			if v < 1e-12 {
				v = 1e-12
			}
			if deriv < 1e-12 {
				deriv = 1e-12
			}
			w[i] = deriv * deriv / v
			z[i] = eta[i] + (y[i]-mu[i])/deriv
		}

		next, err := solveWeightedLS(x, w, z, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
		}

		delta := 0.0
		for j := range next {
			if !isFinite(next[j]) {
				return nil, fmt.Errorf("%w: non-finite coefficient at iteration %d", ErrDegenerateFit, iter)
			}
			if d := math.Abs(next[j] - beta[j]); d > delta {
				delta = d
			}
		}
		copy(beta, next)
		if delta < m.tol {
			converged = true
			break
		}
	}

	scores := make([]float64, n)
	saturated := 0
	for i := 0; i < n; i++ {
		scores[i], _ = m.meanAndDeriv(dot(x, i, beta))
		if scores[i] < saturationEps || scores[i] > 1-saturationEps {
			saturated++
		}
	}
	if saturated > 0 {
		return nil, fmt.Errorf("%w: perfect separation (%d of %d scores saturated after %d iterations)", ErrDegenerateFit, saturated, n, iter)
	}
	if err := ValidateScores(scores); err != nil {
		return nil, err
	}

	names := append([]string{"(intercept)"}, pop.Covariates...)
	m.logger.Info("propensity model fitted",
		slog.String("link", string(m.link)),
		slog.Int("units", n),
		slog.Int("parameters", p),
		slog.Int("iterations", iter),
		slog.Bool("converged", converged),
	)
	return &Result{
		Scores:       scores,
		Coefficients: beta,
		Names:        names,
		Iterations:   iter,
		Converged:    converged,
	}, nil
}

// meanAndDeriv evaluates the inverse link and its derivative at eta.
func (m *Model) meanAndDeriv(eta float64) (mu, deriv float64) {
	switch m.link {
	case Probit:
		mu = distuv.UnitNormal.CDF(eta)
		deriv = distuv.UnitNormal.Prob(eta)
	default: // Logit
		mu = 1 / (1 + math.Exp(-eta))
		deriv = mu * (1 - mu)
	}
	return mu, deriv
}

// ValidateScores checks the positivity invariant: every score strictly
// inside (0,1).
func ValidateScores(scores []float64) error {
	for i, s := range scores {
		if !isFinite(s) || s <= 0 || s >= 1 {
			return fmt.Errorf("%w: score[%d]=%g outside (0,1)", ErrPositivityViolation, i, s)
		}
	}
	return nil
}

// designMatrix builds the n x p design with a leading intercept column,
// stored row-major.
func designMatrix(pop *dataset.Population) []float64 {
	p := len(pop.Covariates) + 1
	x := make([]float64, pop.Len()*p)
	for i, u := range pop.Units {
		row := x[i*p : (i+1)*p]
		row[0] = 1
		copy(row[1:], u.Covariates)
	}
	return x
}

// dot computes row i of the design times beta.
func dot(x []float64, i int, beta []float64) float64 {
	p := len(beta)
	row := x[i*p : (i+1)*p]
	s := 0.0
	for j := range row {
		s += row[j] * beta[j]
	}
	return s
}

// solveWeightedLS solves the weighted normal equations (X'WX)b = X'Wz.
func solveWeightedLS(x, w, z []float64, p int) ([]float64, error) {
	n := len(w)
	xm := mat.NewDense(n, p, x)
	wx := mat.NewDense(n, p, nil)
	wz := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			wx.Set(i, j, w[i]*xm.At(i, j))
		}
		wz.SetVec(i, w[i]*z[i])
	}

	var a mat.Dense
	a.Mul(xm.T(), wx)
	var b mat.VecDense
	b.MulVec(xm.T(), wz)

	var beta mat.VecDense
	if err := beta.SolveVec(&a, &b); err != nil {
		return nil, fmt.Errorf("singular weighted design: %w", err)
	}
	out := make([]float64, p)
	for j := 0; j < p; j++ {
		out[j] = beta.AtVec(j)
	}
	return out, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
