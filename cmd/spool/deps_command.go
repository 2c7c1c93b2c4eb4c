package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"spool/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check availability of external tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.Check(deps.FromConfig(cfg))
			fmt.Fprintln(cmd.OutOrStdout(), renderDepsTable(statuses))

			if missing := deps.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("%d required tool(s) missing", len(missing))
			}
			return nil
		},
	}
}

func renderDepsTable(statuses []deps.Status) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"TOOL", "COMMAND", "AVAILABLE", "DETAIL"})
	for _, status := range statuses {
		detail := status.Detail
		if detail == "" {
			detail = status.Description
		}
		tw.AppendRow(table.Row{status.Name, status.Command, yesNo(status.Available), detail})
	}
	return tw.Render()
}
