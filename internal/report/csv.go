// Package report persists study results: CSV tables for downstream
// analysis, an XLSX workbook for review, and a JSON summary served by
// resultsd.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"psmcli/internal/study"
)

// WriteMatchesCSV writes the matched sample of every policy: one row per
// unit per policy with its group, score, weight and matched-set index.
func WriteMatchesCSV(result *study.Result, outputPath string) error {
	pr := result.PrimaryResult()
	if pr == nil {
		return fmt.Errorf("no policy results to save")
	}

	file, err := createFile(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Policy", "Unit", "Group", "Score", "Weight", "Set"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, policy := range result.Policies {
		setOf := make(map[int]int)
		for s, set := range policy.Sample.Sets {
			for _, idx := range set.Treated {
				setOf[idx] = s
			}
			for _, idx := range set.Controls {
				setOf[idx] = s
			}
		}
		for i, u := range result.Population.Units {
			group := "control"
			if u.Treated {
				group = "treated"
			}
			set := ""
			if s, ok := setOf[i]; ok {
				set = strconv.Itoa(s + 1)
			}
			record := []string{
				string(policy.Policy),
				u.ID,
				group,
				formatFloat(result.Propensity.Scores[i], 6),
				formatFloat(policy.Sample.Weights[i], 6),
				set,
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("write CSV record for %s: %w", u.ID, err)
			}
		}
	}
	return nil
}

// WriteBalanceCSV writes the balance diagnostics of every policy.
func WriteBalanceCSV(result *study.Result, outputPath string) error {
	file, err := createFile(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Policy", "Covariate", "Pre_SMD", "Post_SMD", "Pre_Var_Ratio", "Post_Var_Ratio", "Improved"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, policy := range result.Policies {
		for _, row := range policy.Balance.Rows {
			record := []string{
				string(policy.Policy),
				row.Covariate,
				formatFloat(row.PreSMD, 4),
				formatFloat(row.PostSMD, 4),
				formatFloat(row.PreVarRatio, 4),
				formatFloat(row.PostVarRatio, 4),
				strconv.FormatBool(row.Improved),
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("write balance record: %w", err)
			}
		}
	}
	return nil
}

// WriteEffectCSV writes the effect estimate of every policy.
func WriteEffectCSV(result *study.Result, outputPath string) error {
	file, err := createFile(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Policy", "ATE", "SE", "T_Stat", "P_Value", "DF", "N", "Dropped_Treated"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, policy := range result.Policies {
		est := policy.Estimate
		record := []string{
			string(policy.Policy),
			formatFloat(est.ATE, 6),
			formatFloat(est.SE, 6),
			formatFloat(est.TStat, 4),
			formatFloat(est.PValue, 6),
			strconv.Itoa(est.DF),
			strconv.Itoa(est.N),
			strconv.Itoa(policy.Sample.DroppedTreated),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write effect record: %w", err)
		}
	}
	return nil
}

func createFile(outputPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create CSV file: %w", err)
	}
	return file, nil
}

func formatFloat(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64)
}
