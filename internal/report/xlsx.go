package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"psmcli/internal/study"
)

// Sheet names of the study workbook.
const (
	sheetScores  = "Scores"
	sheetMatches = "Matches"
	sheetBalance = "Balance"
	sheetEffect  = "Effect"
)

// WriteWorkbook renders the full study result as one XLSX workbook with a
// sheet per artifact.
func WriteWorkbook(result *study.Result, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeScoresSheet(f, result); err != nil {
		return fmt.Errorf("scores sheet: %w", err)
	}
	if err := writeMatchesSheet(f, result); err != nil {
		return fmt.Errorf("matches sheet: %w", err)
	}
	if err := writeBalanceSheet(f, result); err != nil {
		return fmt.Errorf("balance sheet: %w", err)
	}
	if err := writeEffectSheet(f, result); err != nil {
		return fmt.Errorf("effect sheet: %w", err)
	}

	// Drop the default sheet excelize creates.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeScoresSheet(f *excelize.File, result *study.Result) error {
	if _, err := f.NewSheet(sheetScores); err != nil {
		return err
	}
	rows := [][]interface{}{{"Unit", "Group", "Outcome", "Score"}}
	for i, u := range result.Population.Units {
		group := "control"
		if u.Treated {
			group = "treated"
		}
		rows = append(rows, []interface{}{u.ID, group, u.Outcome, result.Propensity.Scores[i]})
	}
	rows = append(rows, []interface{}{})
	rows = append(rows, []interface{}{"Coefficient", "Value"})
	for i, name := range result.Propensity.Names {
		rows = append(rows, []interface{}{name, result.Propensity.Coefficients[i]})
	}
	return writeRows(f, sheetScores, rows)
}

func writeMatchesSheet(f *excelize.File, result *study.Result) error {
	if _, err := f.NewSheet(sheetMatches); err != nil {
		return err
	}
	rows := [][]interface{}{{"Policy", "Set", "Treated", "Controls", "Dropped_Treated", "Total_Distance"}}
	for _, policy := range result.Policies {
		for s, set := range policy.Sample.Sets {
			rows = append(rows, []interface{}{
				string(policy.Policy),
				s + 1,
				unitNames(result, set.Treated),
				unitNames(result, set.Controls),
				policy.Sample.DroppedTreated,
				policy.Sample.TotalDistance,
			})
		}
	}
	return writeRows(f, sheetMatches, rows)
}

func writeBalanceSheet(f *excelize.File, result *study.Result) error {
	if _, err := f.NewSheet(sheetBalance); err != nil {
		return err
	}
	rows := [][]interface{}{{"Policy", "Covariate", "Pre_SMD", "Post_SMD", "Pre_Var_Ratio", "Post_Var_Ratio", "Improved"}}
	for _, policy := range result.Policies {
		for _, row := range policy.Balance.Rows {
			rows = append(rows, []interface{}{
				string(policy.Policy), row.Covariate,
				row.PreSMD, row.PostSMD, row.PreVarRatio, row.PostVarRatio, row.Improved,
			})
		}
	}
	return writeRows(f, sheetBalance, rows)
}

func writeEffectSheet(f *excelize.File, result *study.Result) error {
	if _, err := f.NewSheet(sheetEffect); err != nil {
		return err
	}
	rows := [][]interface{}{{"Policy", "ATE", "SE", "T_Stat", "P_Value", "DF", "N"}}
	for _, policy := range result.Policies {
		est := policy.Estimate
		rows = append(rows, []interface{}{
			string(policy.Policy), est.ATE, est.SE, est.TStat, est.PValue, est.DF, est.N,
		})
	}
	if result.RequiredSampleSize > 0 {
		rows = append(rows, []interface{}{"(power)", "", "", "", "", "", result.RequiredSampleSize})
	}
	return writeRows(f, sheetEffect, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func unitNames(result *study.Result, indices []int) string {
	names := ""
	for i, idx := range indices {
		if i > 0 {
			names += "; "
		}
		names += result.Population.Units[idx].ID
	}
	return names
}
