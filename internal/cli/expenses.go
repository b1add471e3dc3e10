package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spese-cli/internal/core"
)

func NewExpensesCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "expenses",
		Aliases: []string{"exp"},
		Short:   "Browse expenses and monthly totals",
	}

	cmd.AddCommand(newExpensesListCmd(deps))
	cmd.AddCommand(newExpensesRecentCmd(deps))
	cmd.AddCommand(newExpensesSummaryCmd(deps))
	cmd.AddCommand(newExpensesDeleteCmd(deps))

	return cmd
}

func newExpensesListCmd(deps *Dependencies) *cobra.Command {
	var page, size int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all expenses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := deps.App.Expenses.Page(cmd.Context(), page, size)
			if err != nil {
				return err
			}
			f := formatter(cmd, deps)
			f.ExpenseTable(p.Items)
			f.PageFooter(p)
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number")
	cmd.Flags().IntVarP(&size, "size", "n", 20, "Expenses per page")
	return cmd
}

func newExpensesRecentCmd(deps *Dependencies) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the latest expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := deps.App.Expenses.Recent(cmd.Context(), n)
			if err != nil {
				return err
			}
			formatter(cmd, deps).ExpenseTable(items)
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "limit", "n", 5, "How many expenses to show")
	return cmd
}

func newExpensesSummaryCmd(deps *Dependencies) *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the total of a month by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			year, m, err := parseMonth(month, time.Now())
			if err != nil {
				return err
			}
			ov, err := deps.App.Expenses.MonthOverview(cmd.Context(), year, m)
			if err != nil {
				return err
			}
			formatter(cmd, deps).MonthOverview(ov)
			return nil
		},
	}

	cmd.Flags().StringVarP(&month, "month", "m", "", "Month as YYYY-MM (default current month)")
	return cmd
}

func newExpensesDeleteCmd(deps *Dependencies) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, deps)
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := deps.App.Expenses.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			question := fmt.Sprintf("Delete %q of %s?", e.Description, deps.App.Localizer.Amount(e.Amount))
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), question) {
				f.Info("Nothing deleted")
				return nil
			}
			if err := deps.App.Manual.DeleteExpense(cmd.Context(), id); err != nil {
				return err
			}
			f.Success(fmt.Sprintf("Expense #%d deleted", id))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// parseMonth reads YYYY-MM, defaulting to the month of now
func parseMonth(s string, now time.Time) (int, int, error) {
	if s == "" {
		return now.Year(), int(now.Month()), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q, expected YYYY-MM", core.ErrInvalidMonth, s)
	}
	return t.Year(), int(t.Month()), nil
}
