package matching

import (
	"errors"
	"fmt"
)

// ErrInfeasibleMatching indicates no matched sample can satisfy the
// minimum-representation constraint of the requested policy.
var ErrInfeasibleMatching = errors.New("matching: infeasible")

// Policy selects the matching algorithm.
type Policy string

const (
	PolicyNearest  Policy = "nearest"
	PolicyOptimal  Policy = "optimal"
	PolicyFull     Policy = "full"
	PolicySubclass Policy = "subclass"
)

// IsValid reports whether the policy is one of the supported values.
func (p Policy) IsValid() bool {
	switch p {
	case PolicyNearest, PolicyOptimal, PolicyFull, PolicySubclass:
		return true
	}
	return false
}

// Policies lists the supported policies in a stable order.
func Policies() []Policy {
	return []Policy{PolicyNearest, PolicyOptimal, PolicyFull, PolicySubclass}
}

// Options configures a matching run. Zero values select the defaults.
type Options struct {
	// Ratio is the number of controls per treated unit for optimal
	// matching. Default 1.
	Ratio int `yaml:"ratio"`
	// Subclasses is the number of propensity-score strata for subclass
	// matching. Default 6.
	Subclasses int `yaml:"subclasses"`
	// OrderByScore makes nearest-neighbor matching process treated units
	// in descending score order instead of input order.
	OrderByScore bool `yaml:"order_by_score"`
}

func (o Options) withDefaults() Options {
	if o.Ratio <= 0 {
		o.Ratio = 1
	}
	if o.Subclasses <= 0 {
		o.Subclasses = 6
	}
	return o
}

// MatchedSet is one group of comparable units: unit positions into the
// population, at least one on each side.
type MatchedSet struct {
	Treated  []int `json:"treated"`
	Controls []int `json:"controls"`
}

// MatchedSample is the immutable product of a matching run. Weights is
// parallel to the population's units; a zero weight excludes the unit
// from all downstream weighted computation.
type MatchedSample struct {
	Policy         Policy       `json:"policy"`
	Sets           []MatchedSet `json:"sets"`
	Weights        []float64    `json:"weights"`
	DroppedTreated int          `json:"dropped_treated"`
	TotalDistance  float64      `json:"total_distance"`
}

// MatchedUnits returns the number of units carrying positive weight.
func (ms *MatchedSample) MatchedUnits() int {
	n := 0
	for _, w := range ms.Weights {
		if w > 0 {
			n++
		}
	}
	return n
}

// validate enforces the structural invariants shared by all policies:
// every set has both groups represented, and no unit belongs to two sets.
func (ms *MatchedSample) validate() error {
	seen := make(map[int]bool)
	for i, set := range ms.Sets {
		if len(set.Treated) == 0 || len(set.Controls) == 0 {
			return fmt.Errorf("%w: set %d lacks a treated or control unit", ErrInfeasibleMatching, i)
		}
		for _, idx := range append(append([]int(nil), set.Treated...), set.Controls...) {
			if seen[idx] {
				return fmt.Errorf("unit %d assigned to more than one matched set", idx)
			}
			seen[idx] = true
		}
	}
	return nil
}

// attWeights assigns matched-set weights: treated units weigh 1, controls
// weigh treated:control composition of their set, rescaled so control
// weights average 1 across the matched sample.
func attWeights(n int, sets []MatchedSet) []float64 {
	weights := make([]float64, n)
	sumRaw := 0.0
	controls := 0
	for _, set := range sets {
		raw := float64(len(set.Treated)) / float64(len(set.Controls))
		for _, t := range set.Treated {
			weights[t] = 1
		}
		for _, c := range set.Controls {
			weights[c] = raw
			sumRaw += raw
			controls++
		}
	}
	if sumRaw > 0 {
		scale := float64(controls) / sumRaw
		for _, set := range sets {
			for _, c := range set.Controls {
				weights[c] *= scale
			}
		}
	}
	return weights
}
