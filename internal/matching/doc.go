// Package matching constructs matched samples from scored populations.
//
// Four policies are supported:
//
//  1. Nearest-neighbor: greedy 1:1 pairing without replacement on absolute
//     propensity-score distance. Unmatched treated units are counted and
//     reported, never silently dropped.
//  2. Optimal: global minimum-total-distance 1:1 (or 1:k) pairing solved as
//     a min-cost bipartite assignment.
//  3. Full: a partition of the entire population into disjoint sets, each
//     holding at least one treated and one control unit, with fractional
//     weights proportional to set composition.
//  4. Subclass: quantile stratification of the score range with weights by
//     inverse subclass treatment proportion.
//
// Every policy is deterministic: ties break on unit input order, and no
// randomness is used anywhere. Re-running a policy on an order-stable
// population yields byte-identical matched samples.
package matching
