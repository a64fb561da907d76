// Package study orchestrates one observational study run: assemble the
// population from the two input tables, fit the propensity model, build a
// matched sample per configured policy, compute balance diagnostics, and
// estimate the treatment effect. Each step carries its own state and an
// OpenTelemetry span; any step failure aborts the run.
package study
