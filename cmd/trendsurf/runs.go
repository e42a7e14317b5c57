// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/trendsurf/pkg/artifact"
	"github.com/jllopis/trendsurf/pkg/config"
	"github.com/jllopis/trendsurf/pkg/errors"
)

type runsOutput struct {
	Runs   []artifact.RunRecord  `json:"runs"`
	Events []artifact.StageEvent `json:"events,omitempty"`
}

func newRunsCmd(flags *globalFlags, stdout io.Writer) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded runs, or the stage events of one run",
		Long: `List the most recent runs from the run ledger (store.ledger_path).
With a run ID, print that run's stage events instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithCLI(flags.configArgs())
			if err != nil {
				return err
			}
			if cfg.Store.LedgerPath == "" {
				return errors.New(errors.CodeInvalidInput, "store.ledger_path is not set", nil)
			}
			ledger, err := artifact.OpenSQLiteLedger(cfg.Store.LedgerPath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			var out runsOutput
			if len(args) == 1 {
				out.Events, err = ledger.Events(cmd.Context(), artifact.EventFilter{RunID: args[0]})
			} else {
				out.Runs, err = ledger.Runs(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			if flags.JSON {
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, string(data))
				return nil
			}
			if len(args) == 1 {
				printEvents(stdout, out.Events)
			} else {
				printRuns(stdout, out.Runs)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of runs to list")
	return cmd
}

func printRuns(w io.Writer, runs []artifact.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATUS\tSTARTED\tDURATION\tTOPIC")
	for _, r := range runs {
		dur := "-"
		if !r.FinishedAt.IsZero() {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.RunID, r.Status,
			r.StartedAt.Local().Format(time.DateTime), dur, r.Topic)
	}
	_ = tw.Flush()
}

func printEvents(w io.Writer, events []artifact.StageEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no events recorded for this run")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tSTAGE\tRUN STATUS\tPOLLS\tCHARS\tERROR")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			e.At.Local().Format(time.TimeOnly), e.Type, e.Stage, e.RunStatus, e.Attempts, e.Chars, e.Error)
	}
	_ = tw.Flush()
}
