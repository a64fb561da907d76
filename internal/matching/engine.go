package matching

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"psmcli/internal/dataset"
	"psmcli/internal/propensity"
)

// Engine runs matching policies over a scored population. It never
// mutates its inputs; concurrent Match calls with different options on
// the same population are safe.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a matching engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With(slog.String("component", "matching"))}
}

// Match builds a matched sample under the given policy.
func (e *Engine) Match(ctx context.Context, pop *dataset.Population, scores []float64, policy Policy, opts Options) (*MatchedSample, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("match cancelled: %w", ctx.Err())
	default:
	}

	if !policy.IsValid() {
		return nil, fmt.Errorf("unsupported policy %q", policy)
	}
	if err := pop.Validate(); err != nil {
		return nil, fmt.Errorf("validate population: %w", err)
	}
	if len(scores) != pop.Len() {
		return nil, fmt.Errorf("%d scores for %d units", len(scores), pop.Len())
	}
	if err := propensity.ValidateScores(scores); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	var (
		sample *MatchedSample
		err    error
	)
	switch policy {
	case PolicyNearest:
		sample, err = e.matchNearest(pop, scores, opts)
	case PolicyOptimal:
		sample, err = e.matchOptimal(pop, scores, opts)
	case PolicyFull:
		sample, err = e.matchFull(pop, scores)
	case PolicySubclass:
		sample, err = e.matchSubclass(pop, scores, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("%s matching: %w", policy, err)
	}
	if err := sample.validate(); err != nil {
		return nil, fmt.Errorf("%s matching produced invalid sample: %w", policy, err)
	}

	e.logger.Info("matched sample built",
		slog.String("policy", string(policy)),
		slog.Int("sets", len(sample.Sets)),
		slog.Int("matched_units", sample.MatchedUnits()),
		slog.Int("dropped_treated", sample.DroppedTreated),
		slog.Float64("total_distance", sample.TotalDistance),
	)
	return sample, nil
}

// distance is the absolute propensity-score distance between two units.
func distance(scores []float64, i, j int) float64 {
	return math.Abs(scores[i] - scores[j])
}
