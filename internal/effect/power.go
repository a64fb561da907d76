package effect

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// PowerInput parameterizes the two-sample t-test power calculation. Delta
// is the minimum effect size worth detecting, SD the assumed common
// standard deviation of the outcome.
type PowerInput struct {
	Delta float64 `json:"delta" validate:"required,gt=0"`
	SD    float64 `json:"sd" validate:"required,gt=0"`
	Power float64 `json:"power" validate:"gt=0,lt=1"`
	Alpha float64 `json:"alpha" validate:"gt=0,lt=1"`
}

// IsValid checks the input ranges.
func (in PowerInput) IsValid() bool {
	return in.Delta > 0 && in.SD > 0 &&
		in.Power > 0 && in.Power < 1 &&
		in.Alpha > 0 && in.Alpha < 1
}

// SampleSize returns the per-group sample size required to detect Delta
// with the requested power at significance level Alpha under a two-sided
// two-sample t-test, using the normal approximation
//
//	n = 2 * ((z_{1-alpha/2} + z_{power}) * sd / delta)^2
//
// rounded up. This is the offline pre-registration computation; it plays
// no role in fitting.
func SampleSize(in PowerInput) (int, error) {
	if !in.IsValid() {
		return 0, fmt.Errorf("invalid power input: delta=%.4f sd=%.4f power=%.3f alpha=%.3f",
			in.Delta, in.SD, in.Power, in.Alpha)
	}
	zAlpha := distuv.UnitNormal.Quantile(1 - in.Alpha/2)
	zPower := distuv.UnitNormal.Quantile(in.Power)
	n := 2 * math.Pow((zAlpha+zPower)*in.SD/in.Delta, 2)
	return int(math.Ceil(n)), nil
}
