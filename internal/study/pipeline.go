package study

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"psmcli/internal/balance"
	"psmcli/internal/config"
	"psmcli/internal/dataset"
	"psmcli/internal/effect"
	"psmcli/internal/matching"
	"psmcli/internal/propensity"
)

// PolicyResult bundles the artifacts of one matching policy: the matched
// sample, its balance diagnostics, and the outcome regression on it.
type PolicyResult struct {
	Policy   matching.Policy        `json:"policy"`
	Sample   *matching.MatchedSample `json:"sample"`
	Balance  *balance.Table          `json:"balance"`
	Estimate *effect.Estimate        `json:"estimate"`
}

// Result is the immutable outcome of one study run.
type Result struct {
	RunID      string    `json:"run_id"`
	Study      string    `json:"study"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Units         int      `json:"units"`
	Treated       int      `json:"treated"`
	Control       int      `json:"control"`
	UnjoinedLeft  []string `json:"unjoined_left,omitempty"`
	UnjoinedRight []string `json:"unjoined_right,omitempty"`

	Propensity *propensity.Result `json:"propensity"`
	Policies   []PolicyResult     `json:"policies"`
	Primary    matching.Policy    `json:"primary"`

	// RequiredSampleSize is the pre-registration power computation, when
	// configured. It plays no role in fitting.
	RequiredSampleSize int `json:"required_sample_size,omitempty"`

	Steps []*StepState `json:"steps"`

	// Population is retained for report rendering; treat as read-only.
	Population *dataset.Population `json:"-"`
}

// PrimaryResult returns the policy result the headline estimate is
// reported for.
func (r *Result) PrimaryResult() *PolicyResult {
	for i := range r.Policies {
		if r.Policies[i].Policy == r.Primary {
			return &r.Policies[i]
		}
	}
	return nil
}

// Pipeline executes a configured study.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger
	tracer trace.Tracer
}

// NewPipeline creates a study pipeline. A nil tracer disables tracing.
func NewPipeline(cfg *config.Config, logger *slog.Logger, tracer trace.Tracer) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("psmcli")
	}
	return &Pipeline{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "pipeline")),
		tracer: tracer,
	}
}

// Run executes every stage of the study in order and returns the full
// result. The first failing step aborts the run with its error.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		RunID:     uuid.NewString(),
		Study:     p.cfg.Study.Name,
		StartedAt: time.Now(),
		Primary:   matching.Policy(p.cfg.Study.PrimaryPolicy),
	}
	logger := p.logger.With(slog.String("run_id", result.RunID))
	logger.InfoContext(ctx, "study run starting", slog.String("study", result.Study))

	var pop *dataset.Population
	if err := p.step(ctx, result, "assemble", "Assemble population", func(ctx context.Context) error {
		var err error
		pop, err = p.assemble(ctx, result)
		return err
	}); err != nil {
		return result, err
	}
	result.Population = pop
	result.Units = pop.Len()
	result.Treated = pop.NumTreated()
	result.Control = pop.NumControl()

	if err := p.step(ctx, result, "score", "Fit propensity model", func(ctx context.Context) error {
		model, err := propensity.NewModel(propensity.Link(p.cfg.Study.Link), logger)
		if err != nil {
			return err
		}
		result.Propensity, err = model.Fit(ctx, pop)
		return err
	}); err != nil {
		return result, err
	}

	if err := p.step(ctx, result, "match", "Match, diagnose and estimate", func(ctx context.Context) error {
		return p.matchAll(ctx, pop, result)
	}); err != nil {
		return result, err
	}

	if p.cfg.Study.Power != nil {
		if err := p.step(ctx, result, "power", "Power calculation", func(ctx context.Context) error {
			n, err := effect.SampleSize(*p.cfg.Study.Power)
			if err != nil {
				return err
			}
			result.RequiredSampleSize = n
			return nil
		}); err != nil {
			return result, err
		}
	}

	result.FinishedAt = time.Now()
	logger.InfoContext(ctx, "study run finished",
		slog.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
		slog.Int("policies", len(result.Policies)),
	)
	return result, nil
}

// assemble loads and joins the two input tables and builds the population.
func (p *Pipeline) assemble(ctx context.Context, result *Result) (*dataset.Population, error) {
	left, err := dataset.LoadTable(p.cfg.Study.LeftCSV)
	if err != nil {
		return nil, fmt.Errorf("left table: %w", err)
	}
	right, err := dataset.LoadTable(p.cfg.Study.RightCSV)
	if err != nil {
		return nil, fmt.Errorf("right table: %w", err)
	}

	joined, err := dataset.Join(left, right, p.cfg.Study.Schema.KeyColumn)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	result.UnjoinedLeft = joined.LeftOnlyKeys
	result.UnjoinedRight = joined.RightOnlyKeys
	if len(joined.LeftOnlyKeys)+len(joined.RightOnlyKeys) > 0 {
		p.logger.WarnContext(ctx, "join dropped unmatched keys",
			slog.Int("left_only", len(joined.LeftOnlyKeys)),
			slog.Int("right_only", len(joined.RightOnlyKeys)),
		)
	}

	return dataset.NewAssembler(p.cfg.Study.Schema, p.logger).Assemble(joined.Table)
}

// matchAll runs every configured policy concurrently. Each policy works on
// the same immutable population and scores, so the runs are independent.
func (p *Pipeline) matchAll(ctx context.Context, pop *dataset.Population, result *Result) error {
	policies, err := p.cfg.Study.MatchingPolicies()
	if err != nil {
		return err
	}

	engine := matching.NewEngine(p.logger)
	estimator := effect.NewEstimator(p.logger)
	results := make([]PolicyResult, len(policies))

	g, gctx := errgroup.WithContext(ctx)
	for i, policy := range policies {
		g.Go(func() error {
			sample, err := engine.Match(gctx, pop, result.Propensity.Scores, policy, p.cfg.Study.Matching)
			if err != nil {
				return err
			}
			bal, err := balance.Compute(pop, sample)
			if err != nil {
				return fmt.Errorf("%s balance: %w", policy, err)
			}
			if len(bal.Worsened) > 0 {
				p.logger.WarnContext(gctx, "balance worsened on some covariates",
					slog.String("policy", string(policy)),
					slog.Any("covariates", bal.Worsened),
				)
			}
			est, err := estimator.Estimate(pop, sample)
			if err != nil {
				return fmt.Errorf("%s estimate: %w", policy, err)
			}
			results[i] = PolicyResult{Policy: policy, Sample: sample, Balance: bal, Estimate: est}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	result.Policies = results
	return nil
}

// step runs fn inside a span and records its state on the result.
func (p *Pipeline) step(ctx context.Context, result *Result, id, name string, fn func(context.Context) error) error {
	state := newStepState(id, name)
	result.Steps = append(result.Steps, state)

	ctx, span := p.tracer.Start(ctx, "study."+id,
		trace.WithAttributes(
			attribute.String("run_id", result.RunID),
			attribute.String("study", result.Study),
		))
	defer span.End()

	state.start()
	p.logger.InfoContext(ctx, "step started", slog.String("step", id))

	if err := fn(ctx); err != nil {
		state.fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.ErrorContext(ctx, "step failed",
			slog.String("step", id),
			slog.String("error", err.Error()))
		return fmt.Errorf("step %s: %w", id, err)
	}

	state.complete()
	p.logger.InfoContext(ctx, "step completed",
		slog.String("step", id),
		slog.Duration("elapsed", state.Duration()))
	return nil
}
