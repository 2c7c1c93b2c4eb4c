package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the fetch and transcode queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueDismissCommand(ctx))
	queueCmd.AddCommand(newQueuePauseCommand(ctx))
	queueCmd.AddCommand(newQueueResumeCommand(ctx))

	return queueCmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var account string
	var runtimeSec int

	cmd := &cobra.Command{
		Use:   "add <item-id>",
		Short: "Queue an item for fetch and transcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().Enqueue(enqueuePayload{
				ItemID:     args[0],
				Title:      title,
				AccountID:  account,
				RuntimeSec: runtimeSec,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as job %d\n", job.ItemID, job.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Item title used for library file naming")
	cmd.Flags().StringVar(&account, "account", "", "Account the item belongs to")
	cmd.Flags().IntVar(&runtimeSec, "runtime", 0, "Item runtime in seconds (enables transcode progress)")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queue jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := ctx.client().ListJobs()
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobTable(jobs))
			return nil
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <item-id>",
		Short: "Cancel the running job for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			canceled, err := ctx.client().CancelItem(args[0])
			if err != nil {
				return err
			}
			if !canceled {
				fmt.Fprintf(cmd.OutOrStdout(), "No running job for %s\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Canceled %s\n", args[0])
			return nil
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Requeue a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			if err := ctx.client().Retry(jobID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %d requeued\n", jobID)
			return nil
		},
	}
}

func newQueueDismissCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <job-id>",
		Short: "Remove a job that is not running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			if err := ctx.client().Dismiss(jobID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %d dismissed\n", jobID)
			return nil
		},
	}
}

func newQueuePauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Stop claiming new jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().Pause(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue paused; running jobs will finish")
			return nil
		},
	}
}

func newQueueResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume claiming jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().Resume(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue resumed")
			return nil
		},
	}
}

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}
