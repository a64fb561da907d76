// Package dataset assembles the study population from raw tabular inputs.
//
// The assembly pipeline mirrors the data lifecycle of an observational
// study: two CSV tables are joined on a shared key column, missing values
// are filled by explicit per-column rules, categorical covariates are
// one-hot encoded, and a binary treatment indicator plus a numeric outcome
// are derived from configured columns. The result is an immutable
// Population snapshot consumed by the propensity, matching, balance and
// effect packages.
//
// Missing values that survive imputation are a hard error: silently
// defaulting a covariate would bias every downstream estimate.
package dataset
