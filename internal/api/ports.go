package api

import (
	"context"
	"io"

	"spese-cli/internal/core"
)

// Ports implemented by the HTTP client and the in-memory gateway
type (
	// File is an uploadable payload
	File interface {
		Name() string
		MIMEType() string
		Reader() io.Reader
	}

	// UploadResult is the backend's answer to an accepted upload
	UploadResult struct {
		Message string
		Expense core.Expense
	}

	ExpenseUploader interface {
		UploadExpense(ctx context.Context, f File) (*UploadResult, error)
	}

	CategoryGateway interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
		ListSubcategories(ctx context.Context) ([]core.Subcategory, error)
		CreateCategory(ctx context.Context, name string) (core.Category, error)
		UpdateCategory(ctx context.Context, id int64, name string) (core.Category, error)
		// DeleteCategory fails with ErrHasSubcategories unless force is set
		// when the category still has subcategories.
		DeleteCategory(ctx context.Context, id int64, force bool) error
		CreateSubcategory(ctx context.Context, name string, categoryID int64) (core.Subcategory, error)
		UpdateSubcategory(ctx context.Context, id int64, name string, categoryID int64) (core.Subcategory, error)
		DeleteSubcategory(ctx context.Context, id int64) error
	}

	ExpenseGateway interface {
		ListExpenses(ctx context.Context, q ListQuery) (core.Page[core.Expense], error)
		RecentExpenses(ctx context.Context, limit int) ([]core.Expense, error)
		GetExpense(ctx context.Context, id int64) (core.Expense, error)
		CreateExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
		UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error)
		DeleteExpense(ctx context.Context, id int64) error
	}

	Gateway interface {
		ExpenseUploader
		CategoryGateway
		ExpenseGateway
	}
)

// ListQuery selects one page of expenses. Zero dates are not sent.
type ListQuery struct {
	Page  int
	Limit int
	From  core.Date
	To    core.Date
}

// Normalize applies the default page and limit
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return q
}
