package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"BrentShift/internal/domain/models"
	"BrentShift/internal/service/stream"
)

func newWatchCmd(g *globalOptions) *cobra.Command {
	o := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run an analysis on the service and follow its progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.server == "" {
				return fmt.Errorf("--server is required")
			}
			if err := validColumn(o.column); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			c := stream.New(g.server)
			req := models.StreamRequest{
				Column: o.column,
				Start:  o.start,
				End:    o.end,
				Every:  o.every,
			}
			// only flags given on the command line override the server defaults
			flags := cmd.Flags()
			if flags.Changed("chains") {
				req.NumChains = &o.chains
			}
			if flags.Changed("warmup") {
				req.WarmupSweeps = &o.warmup
			}
			if flags.Changed("samples") {
				req.SampleSweeps = &o.samples
			}
			if flags.Changed("seed") {
				req.BaseSeed = &o.seed
			}
			if flags.Changed("diagnostics") {
				req.Diagnostics = &o.diagnose
			}
			if err := c.Connect(ctx, req); err != nil {
				return err
			}
			defer c.Close()

			start := time.Now()
			frames, errs := c.Read(ctx)
			var final *models.StreamFrame
			for f := range frames {
				switch f.Type {
				case models.FrameProgress:
					if f.Progress != nil {
						printProgress(cmd.ErrOrStderr(), *f.Progress, time.Since(start))
					}
				case models.FrameResult, models.FrameError:
					fr := f
					final = &fr
				}
			}
			if err := <-errs; err != nil {
				return err
			}
			switch {
			case final == nil:
				return fmt.Errorf("stream closed without a result")
			case final.Type == models.FrameError && final.Error != nil:
				return fmt.Errorf("%s: %s", final.Error.Code, final.Error.Message)
			}
			return writeJSON(cmd.OutOrStdout(), final.Result)
		},
	}
	addSamplerFlags(cmd, o)
	cmd.Flags().IntVar(&o.every, "every", 100, "progress interval in sweeps")
	return cmd
}
