package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediaferry/internal/config"
	"mediaferry/internal/records"
	"mediaferry/internal/stage"
	"mediaferry/internal/workdir"
	"mediaferry/internal/workflow"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show record counts and stage readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *records.Store) error {
				manager, err := ctx.newManager(cfg, store)
				if err != nil {
					return err
				}
				return writeStatus(cmd.OutOrStdout(), cfg, manager.Status(cmd.Context()))
			})
		},
	}
}

func writeStatus(out io.Writer, cfg *config.Config, summary workflow.StatusSummary) error {
	colorize := shouldColorize(out)
	counts := summary.Counts

	lines := renderSectionHeader("Records", colorize)
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Metric", "Count"},
		[][]string{
			{"Total", strconv.Itoa(counts.Total)},
			{"Replica confirmed", strconv.Itoa(counts.ReplicaConfirmed)},
			{"Replica pending", strconv.Itoa(counts.ReplicaPending)},
			{"Archive confirmed", strconv.Itoa(counts.ArchiveConfirmed)},
			{"Compressed", strconv.Itoa(counts.Compressed)},
			{"Ready for delete", strconv.Itoa(counts.ReadyForDelete)},
			{"Deleted at origin", strconv.Itoa(counts.DeletedAtOrigin)},
			{"With errors", strconv.Itoa(counts.WithErrors)},
			{"Updated last 24h", strconv.Itoa(counts.UpdatedLast24h)},
			{"Bytes saved", humanize.IBytes(uint64(max(counts.BytesSaved, 0)))},
		},
		[]columnAlignment{alignLeft, alignRight},
	))

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Stages", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, id := range stage.Order() {
		health, ok := summary.StageHealth[id]
		switch {
		case !ok:
			fmt.Fprintln(out, renderStatusLine(id.Label(), statusInfo, "not configured", colorize))
		case health.Ready:
			fmt.Fprintln(out, renderStatusLine(id.Label(), statusOK, "", colorize))
		default:
			fmt.Fprintln(out, renderStatusLine(id.Label(), statusWarn, health.Detail, colorize))
		}
	}

	if cfg.Compression.Enabled {
		entries, size, err := workdir.Usage(cfg.Paths.WorkDir)
		if err != nil {
			fmt.Fprintln(out, renderStatusLine("Work directory", statusWarn, err.Error(), colorize))
		} else {
			fmt.Fprintln(out, renderStatusLine("Work directory", statusInfo,
				fmt.Sprintf("%d entries, %s", entries, humanize.IBytes(uint64(size))), colorize))
		}
	}

	if counts.WithErrors > 0 {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%d records carry errors; see `mediaferry records --failed`\n", counts.WithErrors)
	}
	return nil
}
