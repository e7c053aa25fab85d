package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mediaferry/internal/config"
	"mediaferry/internal/records"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent stage invocations from the run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *records.Store) error {
				entries, err := store.RecentRunLog(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No runs recorded yet")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						shortRunID(entry.RunID),
						entry.Stage,
						entry.Status,
						entry.StartedAt.Local().Format("2006-01-02 15:04:05"),
						entry.Duration().Round(time.Second).String(),
						strconv.Itoa(entry.Total),
						strconv.Itoa(entry.Successful),
						strconv.Itoa(entry.Failed),
						strconv.Itoa(entry.Skipped),
						strconv.Itoa(entry.Unchanged),
						strconv.Itoa(entry.Pending),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Run", "Stage", "Status", "Started", "Duration", "Total", "OK", "Failed", "Skipped", "Unchanged", "Pending"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Number of entries to show")
	return cmd
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
