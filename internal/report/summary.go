package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"psmcli/internal/study"
)

// SummaryFileName is the JSON artifact resultsd serves.
const SummaryFileName = "study_summary.json"

// Summary is the machine-readable digest of a study run.
type Summary struct {
	RunID      string  `json:"run_id"`
	Study      string  `json:"study"`
	StartedAt  string  `json:"started_at"`
	FinishedAt string  `json:"finished_at"`
	Units      int     `json:"units"`
	Treated    int     `json:"treated"`
	Control    int     `json:"control"`
	Primary    string  `json:"primary_policy"`
	ATE        float64 `json:"ate"`
	SE         float64 `json:"se"`
	TStat      float64 `json:"t_stat"`
	PValue     float64 `json:"p_value"`
	MaxPostSMD float64 `json:"max_post_smd"`

	Policies []PolicySummary `json:"policies"`

	RequiredSampleSize int `json:"required_sample_size,omitempty"`
}

// PolicySummary is the per-policy digest.
type PolicySummary struct {
	Policy         string  `json:"policy"`
	Sets           int     `json:"sets"`
	MatchedUnits   int     `json:"matched_units"`
	DroppedTreated int     `json:"dropped_treated"`
	TotalDistance  float64 `json:"total_distance"`
	ATE            float64 `json:"ate"`
	PValue         float64 `json:"p_value"`
	MaxPostSMD     float64 `json:"max_post_smd"`
}

// NewSummary digests a study result.
func NewSummary(result *study.Result) (*Summary, error) {
	primary := result.PrimaryResult()
	if primary == nil {
		return nil, fmt.Errorf("result has no primary policy %q", result.Primary)
	}

	s := &Summary{
		RunID:              result.RunID,
		Study:              result.Study,
		StartedAt:          result.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		FinishedAt:         result.FinishedAt.Format("2006-01-02T15:04:05Z07:00"),
		Units:              result.Units,
		Treated:            result.Treated,
		Control:            result.Control,
		Primary:            string(result.Primary),
		ATE:                primary.Estimate.ATE,
		SE:                 primary.Estimate.SE,
		TStat:              primary.Estimate.TStat,
		PValue:             primary.Estimate.PValue,
		MaxPostSMD:         primary.Balance.MaxPostSMD(),
		RequiredSampleSize: result.RequiredSampleSize,
	}
	for _, policy := range result.Policies {
		s.Policies = append(s.Policies, PolicySummary{
			Policy:         string(policy.Policy),
			Sets:           len(policy.Sample.Sets),
			MatchedUnits:   policy.Sample.MatchedUnits(),
			DroppedTreated: policy.Sample.DroppedTreated,
			TotalDistance:  policy.Sample.TotalDistance,
			ATE:            policy.Estimate.ATE,
			PValue:         policy.Estimate.PValue,
			MaxPostSMD:     policy.Balance.MaxPostSMD(),
		})
	}
	return s, nil
}

// WriteSummaryJSON persists the digest into the reports directory.
func WriteSummaryJSON(result *study.Result, reportsDir string) error {
	summary, err := NewSummary(result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return fmt.Errorf("create reports directory: %w", err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	path := filepath.Join(reportsDir, SummaryFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
