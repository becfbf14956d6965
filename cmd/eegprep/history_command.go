package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"eegprep/internal/config"
	"eegprep/internal/ledger"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var dirFlag string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent processing runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := dirFlag
			if dir != "" {
				expanded, err := config.ExpandPath(dir)
				if err != nil {
					return fmt.Errorf("resolve %q: %w", dir, err)
				}
				dir = expanded
			}
			return ctx.withLedger(cmd.Context(), func(store *ledger.Store) error {
				runs, err := store.Recent(cmd.Context(), dir, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				rows := make([][]string, len(runs))
				for i, run := range runs {
					rows[i] = []string{
						shortID(run.ID),
						run.Directory,
						string(run.Status),
						strconv.Itoa(run.Epochs),
						strconv.Itoa(run.Attempts),
						run.Format,
						run.StartedAt.Local().Format(time.DateTime),
						runDuration(run),
					}
				}
				fmt.Fprintln(out, renderTable("", []string{"Run", "Directory", "Status", "Epochs", "Attempts", "Format", "Started", "Took"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dirFlag, "dir", "", "Only show runs for this recording directory")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(run ledger.Run) string {
	if run.FinishedAt == nil {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
