package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"spese-cli/internal/services"
	"spese-cli/internal/storage"
)

func NewOutboxCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and deliver uploads queued while offline",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if deps.App.Outbox == nil {
				return services.ErrOutboxDisabled
			}
			return nil
		},
	}

	cmd.AddCommand(newOutboxListCmd(deps))
	cmd.AddCommand(newOutboxFlushCmd(deps))
	cmd.AddCommand(newOutboxRetryCmd(deps))
	cmd.AddCommand(newOutboxDeleteCmd(deps))

	return cmd
}

func newOutboxListCmd(deps *Dependencies) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, deps)
			stats, err := deps.App.Outbox.Stats(cmd.Context())
			if err != nil {
				return err
			}
			f.OutboxStats(stats)

			items, err := deps.App.Outbox.List(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			f.OutboxItems(items)
			return nil
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", storage.StatusPending, "pending, processing, submitted or failed")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of uploads to show")
	return cmd
}

func newOutboxFlushCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Try to deliver every pending upload now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := deps.App.Processor.Drain(cmd.Context())
			if err != nil {
				return err
			}
			f := formatter(cmd, deps)
			msg := fmt.Sprintf("%d submitted, %d will be retried, %d failed", res.Submitted, res.Retrying, res.Failed)
			if res.Retrying > 0 || res.Failed > 0 {
				f.Warning(msg)
			} else {
				f.Success(msg)
			}
			return nil
		},
	}
}

func newOutboxRetryCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Move failed uploads back to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := deps.App.Processor.RetryFailed(cmd.Context())
			if err != nil {
				return err
			}
			formatter(cmd, deps).Success(fmt.Sprintf("%d uploads will be retried", n))
			return nil
		},
	}
}

func newOutboxDeleteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a queued upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.App.Outbox.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			formatter(cmd, deps).Success("Upload " + args[0] + " removed")
			return nil
		},
	}
}
