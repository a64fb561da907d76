package dataset

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the assembly pipeline.
var (
	// ErrSchemaMismatch indicates a configured column is absent from an input table.
	ErrSchemaMismatch = errors.New("dataset: schema mismatch")
	// ErrMissingData indicates an unfilled value reached the model-ready population.
	ErrMissingData = errors.New("dataset: missing data")
)

// Unit is one subject of the study: a unique identifier, an ordered
// numeric covariate vector, a binary treatment indicator and a
// continuous outcome in [0,1]. Covariate names live on the Population
// so units stay compact.
type Unit struct {
	ID         string    `json:"id"`
	Covariates []float64 `json:"covariates"`
	Treated    bool      `json:"treated"`
	Outcome    float64   `json:"outcome"`
}

// IsValid checks the unit invariants: outcome in [0,1] and a non-empty ID.
func (u Unit) IsValid() bool {
	return u.ID != "" && u.Outcome >= 0 && u.Outcome <= 1
}

// Population is an immutable snapshot of the assembled study sample.
// Covariates holds the column names in the same order as each unit's
// covariate vector. No downstream stage mutates a Population; matching
// and weighting produce separate artifacts indexed by unit position.
type Population struct {
	Covariates []string `json:"covariates"`
	Units      []Unit   `json:"units"`
}

// Len returns the number of units.
func (p *Population) Len() int { return len(p.Units) }

// NumTreated returns the number of treated units.
func (p *Population) NumTreated() int {
	n := 0
	for _, u := range p.Units {
		if u.Treated {
			n++
		}
	}
	return n
}

// NumControl returns the number of control units.
func (p *Population) NumControl() int { return len(p.Units) - p.NumTreated() }

// TreatedIndices returns unit positions of the treated group in input order.
func (p *Population) TreatedIndices() []int {
	var idx []int
	for i, u := range p.Units {
		if u.Treated {
			idx = append(idx, i)
		}
	}
	return idx
}

// ControlIndices returns unit positions of the control group in input order.
func (p *Population) ControlIndices() []int {
	var idx []int
	for i, u := range p.Units {
		if !u.Treated {
			idx = append(idx, i)
		}
	}
	return idx
}

// Column extracts covariate j across all units, in unit order.
func (p *Population) Column(j int) []float64 {
	col := make([]float64, len(p.Units))
	for i, u := range p.Units {
		col[i] = u.Covariates[j]
	}
	return col
}

// Outcomes extracts the outcome vector in unit order.
func (p *Population) Outcomes() []float64 {
	out := make([]float64, len(p.Units))
	for i, u := range p.Units {
		out[i] = u.Outcome
	}
	return out
}

// Validate checks structural invariants: consistent covariate vector
// lengths, valid units, and at least one unit per treatment arm.
func (p *Population) Validate() error {
	if len(p.Units) == 0 {
		return fmt.Errorf("population has no units")
	}
	for i, u := range p.Units {
		if len(u.Covariates) != len(p.Covariates) {
			return fmt.Errorf("unit %s: %d covariate values for %d columns", u.ID, len(u.Covariates), len(p.Covariates))
		}
		if !u.IsValid() {
			return fmt.Errorf("unit %d (%s): invalid outcome %.4f", i, u.ID, u.Outcome)
		}
	}
	if p.NumTreated() == 0 {
		return fmt.Errorf("population has no treated units")
	}
	if p.NumControl() == 0 {
		return fmt.Errorf("population has no control units")
	}
	return nil
}
