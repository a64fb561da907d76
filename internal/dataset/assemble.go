package dataset

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// Fill strategies accepted by FillRule.
const (
	FillConstant = "constant"
	FillMean     = "mean"
	FillMode     = "mode"
)

// FillRule declares how missing values in one column are imputed before
// assembly. Constant fills use Value verbatim; mean applies to numeric
// columns, mode to categorical ones.
type FillRule struct {
	Column   string `yaml:"column" validate:"required"`
	Strategy string `yaml:"strategy" validate:"required,oneof=constant mean mode"`
	Value    string `yaml:"value"`
}

// Schema describes how the joined table maps onto the study population.
type Schema struct {
	KeyColumn       string     `yaml:"key_column" validate:"required"`
	TreatmentColumn string     `yaml:"treatment_column" validate:"required"`
	TreatedValue    string     `yaml:"treated_value" validate:"required"`
	OutcomeColumn   string     `yaml:"outcome_column" validate:"required"`
	Numeric         []string   `yaml:"numeric_covariates"`
	Categorical     []string   `yaml:"categorical_covariates"`
	Fill            []FillRule `yaml:"fill"`
}

// columns returns every column the schema touches, for existence checks.
func (s Schema) columns() []string {
	cols := []string{s.KeyColumn, s.TreatmentColumn, s.OutcomeColumn}
	cols = append(cols, s.Numeric...)
	cols = append(cols, s.Categorical...)
	return cols
}

// Assembler turns a joined table into a model-ready Population.
type Assembler struct {
	schema Schema
	logger *slog.Logger
}

// NewAssembler creates an assembler for the given schema.
func NewAssembler(schema Schema, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{schema: schema, logger: logger.With(slog.String("component", "assembler"))}
}

// Assemble validates the schema against the table, imputes missing values,
// one-hot encodes categorical covariates (reference level dropped) and
// derives the treatment indicator and outcome. Any value still missing
// after imputation fails with ErrMissingData.
func (a *Assembler) Assemble(table *Table) (*Population, error) {
	for _, col := range a.schema.columns() {
		if !table.HasColumn(col) {
			return nil, fmt.Errorf("%w: column %q not in joined table", ErrSchemaMismatch, col)
		}
	}

	filled, err := a.impute(table)
	if err != nil {
		return nil, fmt.Errorf("impute: %w", err)
	}

	names, encode, err := a.encoder(filled)
	if err != nil {
		return nil, err
	}

	pop := &Population{Covariates: names}
	for i, row := range filled.Rows {
		unit := Unit{ID: row[a.schema.KeyColumn]}

		covs, err := encode(row)
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i+1, unit.ID, err)
		}
		unit.Covariates = covs

		unit.Treated = row[a.schema.TreatmentColumn] == a.schema.TreatedValue

		outcome, err := parseOutcome(row[a.schema.OutcomeColumn])
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): outcome: %w", i+1, unit.ID, err)
		}
		unit.Outcome = outcome

		pop.Units = append(pop.Units, unit)
	}

	if err := pop.Validate(); err != nil {
		return nil, fmt.Errorf("assembled population invalid: %w", err)
	}
	a.logger.Info("population assembled",
		slog.Int("units", pop.Len()),
		slog.Int("treated", pop.NumTreated()),
		slog.Int("control", pop.NumControl()),
		slog.Int("covariates", len(pop.Covariates)),
	)
	return pop, nil
}

// impute applies the schema's fill rules, returning a copy of the table.
// Values remaining empty in any schema column afterwards are fatal.
func (a *Assembler) impute(table *Table) (*Table, error) {
	out := &Table{Columns: table.Columns}
	for _, row := range table.Rows {
		copied := make(map[string]string, len(row))
		for k, v := range row {
			copied[k] = v
		}
		out.Rows = append(out.Rows, copied)
	}

	for _, rule := range a.schema.Fill {
		if !out.HasColumn(rule.Column) {
			return nil, fmt.Errorf("%w: fill column %q not in table", ErrSchemaMismatch, rule.Column)
		}
		fill, err := fillValue(out, rule)
		if err != nil {
			return nil, err
		}
		n := 0
		for _, row := range out.Rows {
			if isMissing(row[rule.Column]) {
				row[rule.Column] = fill
				n++
			}
		}
		if n > 0 {
			a.logger.Info("imputed missing values",
				slog.String("column", rule.Column),
				slog.String("strategy", rule.Strategy),
				slog.String("fill", fill),
				slog.Int("count", n),
			)
		}
	}

	for i, row := range out.Rows {
		for _, col := range a.schema.columns() {
			if isMissing(row[col]) {
				return nil, fmt.Errorf("%w: row %d column %q empty after imputation", ErrMissingData, i+1, col)
			}
		}
	}
	return out, nil
}

// encoder resolves covariate column names (with one-hot expansion for
// categoricals) and returns a row encoder. Category levels are sorted so
// encoding does not depend on row order; the first level is the reference
// and gets no indicator column.
func (a *Assembler) encoder(table *Table) ([]string, func(map[string]string) ([]float64, error), error) {
	type catCol struct {
		column string
		levels []string // non-reference levels, sorted
		known  map[string]bool
	}

	var cats []catCol
	for _, col := range a.schema.Categorical {
		known := make(map[string]bool)
		for _, row := range table.Rows {
			known[row[col]] = true
		}
		levels := make([]string, 0, len(known))
		for level := range known {
			levels = append(levels, level)
		}
		sort.Strings(levels)
		if len(levels) < 2 {
			a.logger.Warn("categorical covariate has a single level, dropped from design",
				slog.String("column", col))
			continue
		}
		cats = append(cats, catCol{column: col, levels: levels[1:], known: known})
	}

	names := append([]string(nil), a.schema.Numeric...)
	for _, c := range cats {
		for _, level := range c.levels {
			names = append(names, c.column+"="+level)
		}
	}

	numeric := append([]string(nil), a.schema.Numeric...)
	encode := func(row map[string]string) ([]float64, error) {
		covs := make([]float64, 0, len(names))
		for _, col := range numeric {
			v, err := strconv.ParseFloat(strings.TrimSuffix(row[col], "%"), 64)
			if err != nil {
				return nil, fmt.Errorf("column %q: parse %q: %w", col, row[col], err)
			}
			covs = append(covs, v)
		}
		for _, c := range cats {
			if !c.known[row[c.column]] {
				return nil, fmt.Errorf("column %q: unknown level %q", c.column, row[c.column])
			}
			for _, level := range c.levels {
				if row[c.column] == level {
					covs = append(covs, 1)
				} else {
					covs = append(covs, 0)
				}
			}
		}
		return covs, nil
	}
	return names, encode, nil
}

// fillValue computes the replacement value for a fill rule.
func fillValue(table *Table, rule FillRule) (string, error) {
	switch rule.Strategy {
	case FillConstant:
		if rule.Value == "" {
			return "", fmt.Errorf("constant fill for %q has no value", rule.Column)
		}
		return rule.Value, nil

	case FillMean:
		sum, n := 0.0, 0
		for _, row := range table.Rows {
			v := row[rule.Column]
			if isMissing(v) {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
			if err != nil {
				return "", fmt.Errorf("mean fill for %q: non-numeric value %q", rule.Column, v)
			}
			sum += f
			n++
		}
		if n == 0 {
			return "", fmt.Errorf("mean fill for %q: no observed values", rule.Column)
		}
		return strconv.FormatFloat(sum/float64(n), 'f', -1, 64), nil

	case FillMode:
		counts := make(map[string]int)
		for _, row := range table.Rows {
			if v := row[rule.Column]; !isMissing(v) {
				counts[v]++
			}
		}
		if len(counts) == 0 {
			return "", fmt.Errorf("mode fill for %q: no observed values", rule.Column)
		}
		// Ties broken lexicographically for determinism.
		var mode string
		best := -1
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if counts[k] > best {
				best = counts[k]
				mode = k
			}
		}
		return mode, nil

	default:
		return "", fmt.Errorf("unknown fill strategy %q", rule.Strategy)
	}
}

// parseOutcome parses a win-rate style value: either a percent-formatted
// string ("52.3%") or a plain decimal in [0,1].
func parseOutcome(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", raw, err)
	}
	if percent {
		v /= 100
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("outcome %q out of [0,1]", raw)
	}
	return v, nil
}

// isMissing treats empty strings and common NA markers as missing.
func isMissing(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "", "NA", "N/A", "NULL", "NAN":
		return true
	}
	return false
}
