package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
	// Share is the percentage of the month total, 0-100.
	Share float64
}

// MonthOverview is the data behind the monthly pie chart.
type MonthOverview struct {
	Year       int
	Month      int // 1-12
	Total      decimal.Decimal
	Count      int
	ByCategory []CategoryAmount
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// HasNext reports whether another page follows this one.
func (p Page[T]) HasNext() bool {
	return p.Page < p.TotalPages
}

// Summarize aggregates the expenses that fall in year/month by category,
// largest first. Ties keep alphabetical order so the chart is stable.
func Summarize(expenses []Expense, year, month int) MonthOverview {
	ov := MonthOverview{Year: year, Month: month, Total: decimal.Zero}
	sums := map[string]decimal.Decimal{}
	for _, e := range expenses {
		if e.Date.Year() != year || e.Date.Month() != month {
			continue
		}
		ov.Count++
		ov.Total = ov.Total.Add(e.Amount)
		sums[e.Category] = sums[e.Category].Add(e.Amount)
	}
	for name, amt := range sums {
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		c := ov.ByCategory[i].Amount.Cmp(ov.ByCategory[j].Amount)
		if c != 0 {
			return c > 0
		}
		return ov.ByCategory[i].Name < ov.ByCategory[j].Name
	})
	if ov.Total.IsPositive() {
		hundred := decimal.NewFromInt(100)
		for i := range ov.ByCategory {
			ov.ByCategory[i].Share = ov.ByCategory[i].Amount.Mul(hundred).Div(ov.Total).Round(1).InexactFloat64()
		}
	}
	return ov
}
