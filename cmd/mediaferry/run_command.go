package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mediaferry/internal/config"
	"mediaferry/internal/records"
	"mediaferry/internal/stage"
	"mediaferry/internal/stageexec"
	"mediaferry/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		stageNames []string
		dryRun     bool
		listStages bool
		showStatus bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline stages in order",
		Long: `Run the pipeline stages in order.

With no --stage flags every configured stage runs. Repeat --stage (or pass a
comma-separated list) to run a subset; requested stages always execute in
pipeline order. Files that already completed a stage are never repeated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listStages {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStagesTable(cfg))
				return nil
			}
			ids, err := stage.Normalize(stageNames)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *records.Store) error {
				manager, err := ctx.newManager(cfg, store)
				if err != nil {
					return err
				}
				if showStatus {
					return writeStatus(cmd.OutOrStdout(), cfg, manager.Status(cmd.Context()))
				}

				result, runErr := manager.Run(cmd.Context(), workflow.RunOptions{Stages: ids, DryRun: dryRun})
				out := cmd.OutOrStdout()
				if len(result.Stages) > 0 {
					printRunSummary(out, result)
				}
				if runErr != nil {
					return runErr
				}
				if !result.Success {
					if result.StoppedAt != "" {
						return fmt.Errorf("pipeline stopped at %s with %d failed files", result.StoppedAt.Label(), result.Failed())
					}
					return fmt.Errorf("pipeline finished with %d failed files", result.Failed())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&stageNames, "stage", "s", nil, "Stage to run (repeatable; default all)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Report what would happen without changing anything")
	cmd.Flags().BoolVar(&listStages, "list-stages", false, "List the pipeline stages and exit")
	cmd.Flags().BoolVar(&showStatus, "status", false, "Show pipeline status and exit")
	cmd.MarkFlagsMutuallyExclusive("list-stages", "status", "dry-run")
	return cmd
}

func printRunSummary(out io.Writer, result workflow.PipelineResult) {
	rows := make([][]string, 0, len(result.Stages))
	var totals stageexec.BatchResult
	for _, batch := range result.Stages {
		rows = append(rows, batchRow(batch))
		totals.Total += batch.Total
		totals.Successful += batch.Successful
		totals.Failed += batch.Failed
		totals.Skipped += batch.Skipped
		totals.Unchanged += batch.Unchanged
		totals.Pending += batch.Pending
	}
	totals.Duration = result.Duration
	footer := batchRow(totals)
	footer[0] = "Total"
	fmt.Fprintln(out, renderTableWithFooter(
		[]string{"Stage", "Total", "OK", "Failed", "Skipped", "Unchanged", "Pending", "Duration", "First Error"},
		rows,
		footer,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))

	state := "succeeded"
	switch {
	case result.Interrupted:
		state = "interrupted"
	case !result.Success:
		state = "finished with failures"
	}
	if result.DryRun {
		state += " (dry run)"
	}
	fmt.Fprintf(out, "Run %s %s in %s\n", result.RunID, state, result.Duration.Round(time.Millisecond))
	for _, id := range result.Skipped {
		fmt.Fprintf(out, "Skipped %s: not configured\n", id.Label())
	}
}

func batchRow(batch stageexec.BatchResult) []string {
	return []string{
		batch.Stage.Label(),
		strconv.Itoa(batch.Total),
		strconv.Itoa(batch.Successful),
		strconv.Itoa(batch.Failed),
		strconv.Itoa(batch.Skipped),
		strconv.Itoa(batch.Unchanged),
		strconv.Itoa(batch.Pending),
		batch.Duration.Round(time.Millisecond).String(),
		truncate(batch.FirstErrorMessage(), 60),
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}
