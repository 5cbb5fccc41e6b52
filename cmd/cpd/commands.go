package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"BrentShift/internal/changepoint"
	"BrentShift/internal/domain/models"
)

type globalOptions struct {
	server  string
	timeout time.Duration
	verbose bool
}

type analyzeOptions struct {
	csv      string
	column   string
	start    string
	end      string
	chains   int
	warmup   int
	samples  int
	seed     uint64
	target   float64
	diagnose bool
	window   int
	events   int
	estimate string
	every    int
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "cpd",
		Short: "Bayesian change point detection for Brent oil prices",
		Long: `cpd finds the single most probable structural break in a Brent price
series, either locally from a CSV file or through a running service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.server, "server", "", "service base URL; analyses run locally when empty")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Minute, "overall deadline")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log progress to stderr")

	root.AddCommand(newAnalyzeCmd(g), newEventsCmd(g), newWatchCmd(g))
	return root
}

func addSamplerFlags(cmd *cobra.Command, o *analyzeOptions) {
	def := changepoint.DefaultConfig()
	f := cmd.Flags()
	f.StringVar(&o.column, "column", models.ColumnDailyReturn, "series to analyze: daily_return, log_return, price or volatility")
	f.StringVar(&o.start, "start", "", "first day to include")
	f.StringVar(&o.end, "end", "", "last day to include")
	f.IntVar(&o.chains, "chains", def.NumChains, "independent chains")
	f.IntVar(&o.warmup, "warmup", def.WarmupSweeps, "warm-up sweeps per chain")
	f.IntVar(&o.samples, "samples", def.SampleSweeps, "retained sweeps per chain")
	f.Uint64Var(&o.seed, "seed", def.BaseSeed, "base seed")
	f.BoolVar(&o.diagnose, "diagnostics", def.Diagnostics, "compute R-hat and ESS (needs at least 2 chains)")
}

func validColumn(c string) error {
	switch c {
	case models.ColumnDailyReturn, models.ColumnLogReturn, models.ColumnPrice, models.ColumnVolatility:
		return nil
	}
	return fmt.Errorf("unknown column %q", c)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
