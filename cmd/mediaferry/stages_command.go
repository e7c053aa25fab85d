package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mediaferry/internal/config"
	"mediaferry/internal/stage"
)

func newStagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the pipeline stages in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStagesTable(cfg))
			return nil
		},
	}
}

func renderStagesTable(cfg *config.Config) string {
	ids := stage.Order()
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		enabled := true
		if id == stage.Compress {
			enabled = cfg.Compression.Enabled
		}
		rows = append(rows, []string{
			strconv.Itoa(id.Position()),
			string(id),
			id.Description(),
			yesNo(enabled),
		})
	}
	return renderTable(
		[]string{"#", "Stage", "Description", "Enabled"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	)
}
