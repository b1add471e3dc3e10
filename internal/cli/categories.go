package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"spese-cli/internal/catalog"
	"spese-cli/internal/i18n"
	"spese-cli/internal/log"
)

func NewCategoriesCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cat"},
		Short:   "Manage expense categories and subcategories",
	}

	cmd.AddCommand(newCategoriesListCmd(deps))
	cmd.AddCommand(newCategoriesAddCmd(deps))
	cmd.AddCommand(newCategoriesRenameCmd(deps))
	cmd.AddCommand(newCategoriesDeleteCmd(deps))
	cmd.AddCommand(newSubcategoriesCmd(deps))

	return cmd
}

func newCategoriesListCmd(deps *Dependencies) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories with their subcategories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			load := deps.App.Catalog.Categories
			if refresh {
				load = deps.App.Catalog.Refresh
			}
			tree, err := load(cmd.Context())
			if err != nil {
				return err
			}
			formatter(cmd, deps).CategoryTree(tree)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore cached categories")
	return cmd
}

func newCategoriesAddCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := deps.App.Catalog.CreateCategory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			f := formatter(cmd, deps)
			f.Success(f.T(i18n.MsgCategoryCreated, c.ID, c.Name))
			return nil
		},
	}
}

func newCategoriesRenameCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := deps.App.Catalog.UpdateCategory(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			f := formatter(cmd, deps)
			f.Success(f.T(i18n.MsgCategoryRenamed, c.ID, c.Name))
			return nil
		},
	}
}

func newCategoriesDeleteCmd(deps *Dependencies) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category",
		Long:  "Delete a category. When it still has subcategories you are asked whether to delete\nthem too, unless --force is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, deps)
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			// load names so that a conflict can say what would be removed
			if _, err := deps.App.Catalog.Categories(cmd.Context()); err != nil {
				deps.App.Logger.Debug("Categories not loaded before delete", log.FieldError, err.Error())
			}

			err = deps.App.Catalog.DeleteCategory(cmd.Context(), id, force)
			var conflict *catalog.DeleteConflict
			if errors.As(err, &conflict) {
				if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), conflict.Message) {
					f.Info(f.T(i18n.MsgNothingDeleted))
					return nil
				}
				err = deps.App.Catalog.DeleteCategory(cmd.Context(), id, true)
			}
			if err != nil {
				return err
			}
			f.Success(f.T(i18n.MsgCategoryDeleted, id))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Also delete the category's subcategories without asking")
	return cmd
}

func newSubcategoriesCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sub",
		Aliases: []string{"subcategories"},
		Short:   "Manage subcategories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <category-id> <name>",
		Short: "Create a subcategory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			catID, err := parseID(args[0])
			if err != nil {
				return err
			}
			sub, err := deps.App.Catalog.CreateSubcategory(cmd.Context(), args[1], catID)
			if err != nil {
				return err
			}
			f := formatter(cmd, deps)
			f.Success(f.T(i18n.MsgSubcategoryCreated, sub.ID, sub.Name))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <category-id> <name>",
		Short: "Rename or move a subcategory",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			catID, err := parseID(args[1])
			if err != nil {
				return err
			}
			sub, err := deps.App.Catalog.UpdateSubcategory(cmd.Context(), id, args[2], catID)
			if err != nil {
				return err
			}
			f := formatter(cmd, deps)
			f.Success(f.T(i18n.MsgSubcategoryRenamed, sub.ID, sub.Name))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a subcategory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := deps.App.Catalog.DeleteSubcategory(cmd.Context(), id); err != nil {
				return err
			}
			f := formatter(cmd, deps)
			f.Success(f.T(i18n.MsgSubcategoryDeleted, id))
			return nil
		},
	})

	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
