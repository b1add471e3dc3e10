package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"spese-cli/internal/amqp"
)

func NewWatchCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print expenses as they are submitted",
		Long:  "Follow the expense.submitted notifications on the AMQP queue until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.App.Broker == nil {
				return errors.New("AMQP is not configured or the broker is unreachable (set AMQP_URL)")
			}
			f := formatter(cmd, deps)
			f.Info("Waiting for expenses, Ctrl+C to stop")

			err := deps.App.Broker.ConsumeExpenseSubmitted(cmd.Context(), func(_ context.Context, msg *amqp.ExpenseSubmittedMessage) error {
				f.Notification(msg.ExpenseID, msg.Description, msg.Amount, msg.Category, msg.Subcategory, msg.Source, msg.Timestamp)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
