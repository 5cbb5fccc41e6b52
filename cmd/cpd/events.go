package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"BrentShift/internal/domain/models"
	"BrentShift/internal/repository"
	xhttp "BrentShift/pkg/http"
	"BrentShift/pkg/util"
)

func newEventsCmd(g *globalOptions) *cobra.Command {
	var (
		csvPath string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the key oil market events used to explain change points",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			var (
				evs []models.Event
				err error
			)
			switch {
			case g.server != "":
				var list struct {
					Rows []models.Event `json:"rows"`
				}
				err = xhttp.NewClient(g.server).Get(ctx, "/api/events", nil, &list)
				evs = list.Rows
			case csvPath != "":
				evs, err = repository.LoadEventsCSV(csvPath)
			default:
				evs, err = repository.NewStaticEventStore(nil).Events(ctx)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), evs)
			}
			return printEvents(cmd.OutOrStdout(), evs)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "events CSV (date, event_type, description)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printEvents(w io.Writer, evs []models.Event) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTYPE\tDESCRIPTION")
	for _, e := range evs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", util.FormatDate(e.Date), e.EventType, e.Description)
	}
	return tw.Flush()
}
