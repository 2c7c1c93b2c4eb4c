package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHealth(status))
			if len(status.Jobs) > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), renderJobTable(status.Jobs))
			}
			return nil
		},
	}
}
