package cli

import (
	"github.com/spf13/cobra"

	"spese-cli/internal/services"
)

func NewAddCmd(deps *Dependencies) *cobra.Command {
	var entry services.ManualEntry

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an expense by hand",
		Example: `  spese add -d "Pizza" -a 12,50 -c Cibo -s Ristorante
  spese add -d "Bus" -a 1.70 -c Trasporti -s Generale --date 2025-03-10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, deps)
			e, err := deps.App.Manual.CreateExpense(cmd.Context(), entry)
			if err != nil {
				return err
			}
			f.ExpenseSubmitted(e)
			return nil
		},
	}

	cmd.Flags().StringVarP(&entry.Description, "description", "d", "", "What the expense was for")
	cmd.Flags().StringVarP(&entry.Amount, "amount", "a", "", "Amount, e.g. 12.50 or 12,50")
	cmd.Flags().StringVarP(&entry.Category, "category", "c", "", "Category name")
	cmd.Flags().StringVarP(&entry.Subcategory, "subcategory", "s", "", "Subcategory name")
	cmd.Flags().StringVar(&entry.Date, "date", "", "Date as YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("subcategory")

	return cmd
}
