// Command power performs the offline pre-registration computation: the
// per-group sample size required to detect a minimum effect size with a
// two-sided two-sample t-test.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"psmcli/internal/effect"
)

func main() {
	delta := flag.Float64("delta", 0, "minimum effect size worth detecting")
	sd := flag.Float64("sd", 0, "assumed common standard deviation of the outcome")
	power := flag.Float64("power", 0.8, "desired statistical power")
	alpha := flag.Float64("alpha", 0.05, "two-sided significance level")
	flag.Parse()

	n, err := effect.SampleSize(effect.PowerInput{
		Delta: *delta,
		SD:    *sd,
		Power: *power,
		Alpha: *alpha,
	})
	if err != nil {
		slog.Error("Power calculation failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("required sample size per group: %d (delta=%.4f sd=%.4f power=%.2f alpha=%.3f)\n",
		n, *delta, *sd, *power, *alpha)
}
