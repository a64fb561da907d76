// Package propensity fits the treatment-assignment model of the study.
//
// A generalized linear model with a logit or probit link is fit by
// iteratively reweighted least squares on the population's covariates,
// producing one propensity score per unit. Scores must lie strictly
// inside (0,1); a score saturating at either end is a positivity
// violation and is surfaced as an error, never clamped.
package propensity
