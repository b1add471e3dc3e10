package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spese-cli/internal/amqp"
	"spese-cli/internal/catalog"
	"spese-cli/internal/core"
	"spese-cli/internal/expenses"
	"spese-cli/internal/log"
)

// ManualEntry is a typed-in expense, with categories given by name
type ManualEntry struct {
	Description string
	Amount      string
	Category    string
	Subcategory string
	Date        string
}

// ExpenseService handles manual expense entry and deletion
type ExpenseService struct {
	catalog   *catalog.Store
	expenses  *expenses.Store
	publisher Publisher
	logger    *log.Logger
}

func NewExpenseService(cat *catalog.Store, store *expenses.Store, publisher Publisher, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExpenseService{
		catalog:   cat,
		expenses:  store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentExpenses),
	}
}

// Input resolves a manual entry into a validated ExpenseInput. An empty
// date means today.
func (s *ExpenseService) Input(ctx context.Context, m ManualEntry) (core.ExpenseInput, error) {
	var errs []error

	amount, err := core.ParsePositiveAmount(m.Amount)
	if err != nil {
		errs = append(errs, err)
	}

	date := core.Today()
	if strings.TrimSpace(m.Date) != "" {
		if date, err = core.ParseDate(m.Date); err != nil {
			errs = append(errs, err)
		}
	}

	in := core.ExpenseInput{
		Description: strings.TrimSpace(m.Description),
		Amount:      amount,
		Date:        date,
	}
	if in.Description == "" {
		errs = append(errs, core.ErrEmptyDescription)
	}

	if s.catalog == nil {
		errs = append(errs, fmt.Errorf("no category catalog"))
	} else if catID, subID, err := s.catalog.Resolve(ctx, m.Category, m.Subcategory); err != nil {
		errs = append(errs, err)
	} else {
		in.CategoryID, in.SubcategoryID = catID, subID
	}

	if len(errs) > 0 {
		return core.ExpenseInput{}, errors.Join(errs...)
	}
	return in, in.Validate()
}

// CreateExpense stores a manual entry and announces it. A failed
// notification does not fail the request.
func (s *ExpenseService) CreateExpense(ctx context.Context, m ManualEntry) (core.Expense, error) {
	in, err := s.Input(ctx, m)
	if err != nil {
		return core.Expense{}, err
	}

	e, err := s.expenses.Create(ctx, in)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense created",
		log.FieldExpenseID, e.ID,
		log.FieldAmount, core.FormatAmount(e.Amount),
		log.FieldCategory, e.Category,
		log.FieldSubcategory, e.Subcategory)

	if s.publisher != nil {
		msg := amqp.NewExpenseSubmittedMessage(e, "", amqp.SourceManual)
		if err := s.publisher.PublishExpenseSubmitted(ctx, msg); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish expense submitted message",
				log.FieldExpenseID, e.ID, log.FieldError, err)
		}
	}
	return e, nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.expenses.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	s.logger.InfoContext(ctx, "Expense deleted", log.FieldExpenseID, id)
	return nil
}
