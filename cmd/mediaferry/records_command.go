package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediaferry/internal/config"
	"mediaferry/internal/records"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	var (
		failedOnly bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List tracked media records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *records.Store) error {
				list, err := store.List(cmd.Context(), records.ListOptions{FailedOnly: failedOnly, Limit: limit})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					if failedOnly {
						fmt.Fprintln(out, "No records with errors")
					} else {
						fmt.Fprintln(out, "No records tracked yet")
					}
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, rec := range list {
					rows = append(rows, recordRow(rec))
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "File", "Replica", "Archive", "Compressed", "Ready", "Deleted", "Size", "Errors", "Last Error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show records with errors that have not been deleted at the origin")
	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "Maximum number of records to show (0 for all)")
	return cmd
}

func recordRow(rec records.Record) []string {
	size := "-"
	if rec.CurrentSize > 0 {
		size = humanize.IBytes(uint64(rec.CurrentSize))
	}
	return []string{
		strconv.FormatInt(rec.ID, 10),
		rec.Filename,
		rec.ReplicaConfirmed.String(),
		rec.ArchiveConfirmed.String(),
		rec.Compressed.String(),
		rec.ReadyForDelete.String(),
		rec.DeletedAtOrigin.String(),
		size,
		strconv.Itoa(rec.ErrorCount),
		truncate(rec.LastError, 50),
	}
}
