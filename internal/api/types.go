package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"spese-cli/internal/core"
)

// Amount decodes a decimal sent either as a JSON string or a number
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return fmt.Errorf("%w: null", core.ErrInvalidAmount)
	}
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	d, err := core.ParseAmount(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", err, raw)
	}
	a.Decimal = d
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(core.FormatAmount(a.Decimal))
}

type categoryDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (c categoryDTO) toCore() core.Category {
	return core.Category{ID: c.ID, Name: c.Name}
}

type subcategoryDTO struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	CategoryID int64  `json:"categoryId"`
}

func (s subcategoryDTO) toCore() core.Subcategory {
	return core.Subcategory{ID: s.ID, Name: s.Name, CategoryID: s.CategoryID}
}

// ExpenseFromAPI is the expense representation returned by the backend
type ExpenseFromAPI struct {
	ID              int64   `json:"id"`
	Description     string  `json:"description"`
	Amount          *Amount `json:"amount"`
	Date            string  `json:"date"`
	CategoryID      int64   `json:"categoryId,omitempty"`
	SubcategoryID   int64   `json:"subcategoryId,omitempty"`
	CategoryName    string  `json:"categoryName"`
	SubcategoryName string  `json:"subcategoryName"`
}

// ToCore validates and converts the wire form
func (e ExpenseFromAPI) ToCore() (core.Expense, error) {
	if e.Amount == nil {
		return core.Expense{}, fmt.Errorf("expense %d: %w: missing", e.ID, core.ErrInvalidAmount)
	}
	date, err := core.ParseDate(e.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d: %w", e.ID, err)
	}
	return core.Expense{
		ID:          e.ID,
		Description: e.Description,
		Amount:      e.Amount.Decimal,
		Category:    e.CategoryName,
		Subcategory: e.SubcategoryName,
		Date:        date,
	}, nil
}

// FromCore builds the wire form of an expense, used by fakes and the outbox
func FromCore(e core.Expense) ExpenseFromAPI {
	return ExpenseFromAPI{
		ID:              e.ID,
		Description:     e.Description,
		Amount:          &Amount{Decimal: e.Amount},
		Date:            e.Date.String(),
		CategoryName:    e.Category,
		SubcategoryName: e.Subcategory,
	}
}

type expenseInputDTO struct {
	Description   string `json:"description"`
	Amount        Amount `json:"amount"`
	Date          string `json:"date"`
	CategoryID    int64  `json:"categoryId"`
	SubcategoryID int64  `json:"subcategoryId"`
}

func newExpenseInputDTO(in core.ExpenseInput) expenseInputDTO {
	return expenseInputDTO{
		Description:   strings.TrimSpace(in.Description),
		Amount:        Amount{Decimal: in.Amount},
		Date:          in.Date.String(),
		CategoryID:    in.CategoryID,
		SubcategoryID: in.SubcategoryID,
	}
}

type uploadResponse struct {
	Message string          `json:"message"`
	Expense *ExpenseFromAPI `json:"expense"`
}

type expensePageDTO struct {
	Expenses   []ExpenseFromAPI `json:"expenses"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	Total      int              `json:"total"`
	TotalPages int              `json:"totalPages"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func convertExpenses(in []ExpenseFromAPI) ([]core.Expense, error) {
	out := make([]core.Expense, 0, len(in))
	for _, e := range in {
		exp, err := e.ToCore()
		if err != nil {
			return nil, err
		}
		out = append(out, exp)
	}
	return out, nil
}
