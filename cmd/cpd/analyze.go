package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"BrentShift/internal/changepoint"
	"BrentShift/internal/domain/models"
	"BrentShift/internal/repository"
	"BrentShift/internal/services/features"
	"BrentShift/internal/usecase"
	xhttp "BrentShift/pkg/http"
	applogger "BrentShift/pkg/logger"
	"BrentShift/pkg/metrics"
	"BrentShift/pkg/util"
)

func newAnalyzeCmd(g *globalOptions) *cobra.Command {
	o := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Detect the change point and print the projection as JSON",
		Example: `  cpd analyze --csv BrentOilPrices.csv --column daily_return --chains 2 --warmup 500 --samples 2000 --seed 42
  cpd analyze --server http://localhost:8080 --start 2019-01-01 --end 2021-12-31`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validColumn(o.column); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			var (
				rec *models.ChangePointRecord
				err error
			)
			if g.server != "" {
				rec, err = analyzeRemote(ctx, g, o)
			} else {
				rec, err = analyzeLocal(ctx, g, o, cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
	addSamplerFlags(cmd, o)
	f := cmd.Flags()
	f.StringVar(&o.csv, "csv", "", "Brent price CSV (Date plus Price, Value or Close)")
	f.Float64Var(&o.target, "target-acceptance", changepoint.DefaultConfig().TargetAcceptance, "warm-up target acceptance rate of the sigma Metropolis step")
	f.StringVar(&o.estimate, "estimator", changepoint.EstimatorMode, "tau point estimate: mode, mean or median")
	f.IntVar(&o.window, "window", features.DefaultVolatilityWindow, "rolling volatility window in days")
	f.IntVar(&o.events, "event-window", 60, "report key events within this many days of the change")
	f.IntVar(&o.every, "every", 250, "progress interval in sweeps with --verbose")
	return cmd
}

func (o *analyzeOptions) config() *models.AnalysisConfig {
	return &models.AnalysisConfig{
		NumChains:        &o.chains,
		WarmupSweeps:     &o.warmup,
		SampleSweeps:     &o.samples,
		BaseSeed:         &o.seed,
		TargetAcceptance: &o.target,
		Diagnostics:      &o.diagnose,
		TauEstimator:     o.estimate,
	}
}

func analyzeLocal(ctx context.Context, g *globalOptions, o *analyzeOptions, stderr io.Writer) (*models.ChangePointRecord, error) {
	if o.csv == "" {
		return nil, fmt.Errorf("--csv is required without --server")
	}
	l := applogger.NewNop()
	if g.verbose {
		l = applogger.NewWriter(stderr, zerolog.InfoLevel)
	}
	points, err := repository.LoadPricesCSV(o.csv, l)
	if err != nil {
		return nil, err
	}

	uc := usecase.NewAnalysisUseCase(
		repository.NewMemoryPriceStore(points),
		repository.NewMemoryChangePointStore(1),
		repository.NewStaticEventStore(nil),
		nil, nil,
		metrics.New(prometheus.NewRegistry()),
		l,
		usecase.AnalysisSettings{
			Defaults:         changepoint.DefaultConfig(),
			DefaultColumn:    o.column,
			VolatilityWindow: o.window,
			EventWindowDays:  o.events,
		},
	)
	req := &models.AnalyzeRequest{Column: o.column, Start: o.start, End: o.end, Config: o.config()}
	rec, err := runAnalysis(ctx, uc, req, g.verbose, o.every, stderr)
	if err != nil {
		return nil, describe(err)
	}
	return rec, nil
}

func runAnalysis(ctx context.Context, uc *usecase.AnalysisUseCase, req *models.AnalyzeRequest, verbose bool, every int, stderr io.Writer) (*models.ChangePointRecord, error) {
	if !verbose {
		return uc.Analyze(ctx, req)
	}
	start := time.Now()
	events := make(chan changepoint.ProgressEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			printProgress(stderr, ev, time.Since(start))
		}
	}()
	rec, err := uc.Stream(ctx, req, every, func(ev changepoint.ProgressEvent) {
		select {
		case events <- ev:
		default:
		}
	})
	close(events)
	<-done
	return rec, err
}

func printProgress(w io.Writer, ev changepoint.ProgressEvent, elapsed time.Duration) {
	fmt.Fprintf(w, "chain %d %-8s %6d/%-6d acc=%.3f scale=%.3g tau=%d (%s)\n",
		ev.Chain, ev.Phase, ev.Sweep, ev.Total, ev.Acceptance, ev.Scale, ev.State.Tau, elapsed.Truncate(time.Millisecond))
}

// analyzeRemote sends the derived CSV series when --csv is set, otherwise
// asks the service to analyze its stored prices.
func analyzeRemote(ctx context.Context, g *globalOptions, o *analyzeOptions) (*models.ChangePointRecord, error) {
	req := &models.AnalyzeRequest{Config: o.config()}
	if o.csv != "" {
		points, err := repository.LoadPricesCSV(o.csv, nil)
		if err != nil {
			return nil, err
		}
		var r models.DateRange
		if o.start != "" {
			t, ok := util.ParseDate(o.start)
			if !ok {
				return nil, fmt.Errorf("invalid --start %q", o.start)
			}
			r.From = &t
		}
		if o.end != "" {
			t, ok := util.ParseDate(o.end)
			if !ok {
				return nil, fmt.Errorf("invalid --end %q", o.end)
			}
			r.To = &t
		}
		s, err := features.BuildSeries(points, o.column, r, o.window)
		if err != nil {
			return nil, err
		}
		req.Series = make([]models.SeriesPoint, s.Len())
		for i := range s.Values {
			req.Series[i] = models.SeriesPoint{Timestamp: util.FormatDate(s.Index[i]), Value: s.Values[i]}
		}
	} else {
		req.Column, req.Start, req.End = o.column, o.start, o.end
	}

	c := xhttp.NewClient(g.server, xhttp.WithTimeout(g.timeout))
	var rec models.ChangePointRecord
	if err := c.Post(ctx, "/api/change-points/analyze", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// describe turns analysis failures into the message the service would send.
func describe(err error) error {
	appErr := usecase.MapAnalysisError(err)
	msg := appErr.Message
	if appErr.Retryable {
		msg += "; retry later"
	}
	if appErr.Field != "" {
		return fmt.Errorf("%s (%s): %s", appErr.Code, appErr.Field, msg)
	}
	return fmt.Errorf("%s: %s", appErr.Code, msg)
}
