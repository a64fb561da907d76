// Command causal-report runs the full study pipeline: join the two input
// tables, fit the propensity model, build matched samples under every
// configured policy, compute balance diagnostics, estimate the treatment
// effect, and write the CSV, XLSX and JSON reports.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"psmcli/internal/config"
	"psmcli/internal/infrastructure"
	"psmcli/internal/report"
	"psmcli/internal/study"
)

func main() {
	configPath := flag.String("config", "study.yml", "path to the study configuration file")
	outputDir := flag.String("out", "", "output directory for reports (defaults to configured reports dir)")
	trace := flag.Bool("trace", false, "emit pipeline spans to stdout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	logger, closeLog, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx := context.Background()

	pipeline := study.NewPipeline(cfg, logger, nil)
	if *trace {
		tracer, shutdown, err := infrastructure.InitTracer(os.Stdout)
		if err != nil {
			logger.Error("Failed to initialize tracer", "error", err)
			os.Exit(1)
		}
		defer shutdown(ctx)
		pipeline = study.NewPipeline(cfg, logger, tracer)
	}

	result, err := pipeline.Run(ctx)
	if err != nil {
		logger.Error("Study run failed", "error", err)
		os.Exit(1)
	}

	reportsDir := cfg.Paths.ReportsDir
	if *outputDir != "" {
		reportsDir = *outputDir
	}

	if err := report.WriteMatchesCSV(result, filepath.Join(reportsDir, "matches.csv")); err != nil {
		logger.Error("Failed to write matches report", "error", err)
		os.Exit(1)
	}
	if err := report.WriteBalanceCSV(result, filepath.Join(reportsDir, "balance.csv")); err != nil {
		logger.Error("Failed to write balance report", "error", err)
		os.Exit(1)
	}
	if err := report.WriteEffectCSV(result, filepath.Join(reportsDir, "effect.csv")); err != nil {
		logger.Error("Failed to write effect report", "error", err)
		os.Exit(1)
	}
	if err := report.WriteWorkbook(result, filepath.Join(reportsDir, "study.xlsx")); err != nil {
		logger.Error("Failed to write workbook", "error", err)
		os.Exit(1)
	}
	if err := report.WriteSummaryJSON(result, reportsDir); err != nil {
		logger.Error("Failed to write summary", "error", err)
		os.Exit(1)
	}

	primary := result.PrimaryResult()
	logger.Info("Study completed",
		"run_id", result.RunID,
		"policy", string(result.Primary),
		"ate", primary.Estimate.ATE,
		"se", primary.Estimate.SE,
		"p_value", primary.Estimate.PValue,
		"reports_dir", reportsDir,
	)
}
