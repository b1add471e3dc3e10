package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO calendar date format exchanged with the backend.
const DateLayout = "2006-01-02"

type (
	Date struct {
		time.Time
	}

	// Expense is a record created by the backend. The client never builds
	// one on its own; it only decodes server responses into it.
	Expense struct {
		ID          int64
		Description string
		Amount      decimal.Decimal
		Category    string
		Subcategory string
		Date        Date
	}

	// ExpenseInput carries manually entered fields for create/update.
	ExpenseInput struct {
		Description   string
		Amount        decimal.Decimal
		CategoryID    int64
		SubcategoryID int64
		Date          Date
	}

	Category struct {
		ID   int64
		Name string
	}

	Subcategory struct {
		ID         int64
		Name       string
		CategoryID int64
	}

	// CategoryNode is a category with the subcategories that reference it.
	CategoryNode struct {
		Category
		Subcategories []Subcategory
	}

	CategoryTree []CategoryNode
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptySubcategory = errors.New("empty subcategory")
	ErrEmptyName        = errors.New("empty name")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts a plain ISO date or a full RFC3339 timestamp and keeps
// only the calendar day.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return NewDate(t.Year(), int(t.Month()), t.Day()), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return NewDate(t.Year(), int(t.Month()), t.Day()), nil
}

// Today returns the current calendar date in UTC.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

func (in ExpenseInput) Validate() error {
	if err := in.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(in.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(in.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if in.CategoryID <= 0 {
		return ErrEmptyCategory
	}
	if in.SubcategoryID <= 0 {
		return ErrEmptySubcategory
	}
	return nil
}

// JoinCategories groups subcategories under their parent category by
// CategoryID, preserving the input order. Subcategories whose parent is not
// in cats are dropped.
func JoinCategories(cats []Category, subs []Subcategory) CategoryTree {
	tree := make(CategoryTree, len(cats))
	index := make(map[int64]int, len(cats))
	for i, c := range cats {
		tree[i] = CategoryNode{Category: c}
		index[c.ID] = i
	}
	for _, s := range subs {
		i, ok := index[s.CategoryID]
		if !ok {
			continue
		}
		tree[i].Subcategories = append(tree[i].Subcategories, s)
	}
	return tree
}

// Find returns the node for the given category ID.
func (t CategoryTree) Find(id int64) (CategoryNode, bool) {
	for _, n := range t {
		if n.ID == id {
			return n, true
		}
	}
	return CategoryNode{}, false
}

// FindByName looks a category up case-insensitively.
func (t CategoryTree) FindByName(name string) (CategoryNode, bool) {
	name = strings.TrimSpace(name)
	for _, n := range t {
		if strings.EqualFold(n.Name, name) {
			return n, true
		}
	}
	return CategoryNode{}, false
}

// Subcategory looks up a subcategory of this node by name.
func (n CategoryNode) Subcategory(name string) (Subcategory, bool) {
	name = strings.TrimSpace(name)
	for _, s := range n.Subcategories {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Subcategory{}, false
}
