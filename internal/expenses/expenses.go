// Package expenses serves the expense lists and monthly overview
package expenses

import (
	"context"
	"fmt"
	"time"

	"spese-cli/internal/api"
	"spese-cli/internal/cache"
	"spese-cli/internal/core"
	"spese-cli/internal/log"
)

const (
	overviewCacheSize = 24
	overviewPageSize  = 100
	// maxOverviewPages bounds the walk over a month's pages
	maxOverviewPages = 50
)

type Store struct {
	gw        api.ExpenseGateway
	overviews *cache.LRUCache[core.MonthOverview]
	logger    *log.Logger
}

type Option func(*storeOptions)

type storeOptions struct {
	ttl    time.Duration
	clock  func() time.Time
	logger *log.Logger
}

// WithOverviewTTL sets how long month overviews are cached
func WithOverviewTTL(ttl time.Duration) Option {
	return func(o *storeOptions) { o.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) { o.clock = now }
}

func WithLogger(l *log.Logger) Option {
	return func(o *storeOptions) { o.logger = l }
}

func New(gw api.ExpenseGateway, opts ...Option) *Store {
	o := storeOptions{ttl: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Discard()
	}
	var cacheOpts []cache.Option
	if o.clock != nil {
		cacheOpts = append(cacheOpts, cache.WithClock(o.clock))
	}
	return &Store{
		gw:        gw,
		overviews: cache.NewLRUCache[core.MonthOverview](overviewCacheSize, o.ttl, cacheOpts...),
		logger:    o.logger.WithComponent(log.ComponentExpenses),
	}
}

// Recent returns the latest n expenses
func (s *Store) Recent(ctx context.Context, n int) ([]core.Expense, error) {
	return s.gw.RecentExpenses(ctx, n)
}

// Page returns one page of all expenses, newest first
func (s *Store) Page(ctx context.Context, page, size int) (core.Page[core.Expense], error) {
	return s.gw.ListExpenses(ctx, api.ListQuery{Page: page, Limit: size})
}

func overviewKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// MonthOverview aggregates a month's expenses by category
func (s *Store) MonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	if month < 1 || month > 12 {
		return core.MonthOverview{}, core.ErrInvalidMonth
	}
	key := overviewKey(year, month)
	if ov, ok := s.overviews.Get(key); ok {
		s.logger.Debug("Month overview served from cache", "month", key)
		return ov, nil
	}

	from := core.NewDate(year, month, 1)
	to := core.Date{Time: from.AddDate(0, 1, -1)}

	var all []core.Expense
	for page := 1; page <= maxOverviewPages; page++ {
		p, err := s.gw.ListExpenses(ctx, api.ListQuery{Page: page, Limit: overviewPageSize, From: from, To: to})
		if err != nil {
			return core.MonthOverview{}, fmt.Errorf("failed to list expenses for %s: %w", key, err)
		}
		all = append(all, p.Items...)
		if !p.HasNext() || len(p.Items) == 0 {
			break
		}
	}

	ov := core.Summarize(all, year, month)
	s.overviews.Set(key, ov)
	return ov, nil
}

func (s *Store) Get(ctx context.Context, id int64) (core.Expense, error) {
	return s.gw.GetExpense(ctx, id)
}

func (s *Store) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	exp, err := s.gw.CreateExpense(ctx, in)
	if err != nil {
		return core.Expense{}, err
	}
	s.Invalidate()
	return exp, nil
}

func (s *Store) Update(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error) {
	exp, err := s.gw.UpdateExpense(ctx, id, in)
	if err != nil {
		return core.Expense{}, err
	}
	s.Invalidate()
	return exp, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.gw.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// Invalidate drops cached overviews, e.g. after an upload created an expense
func (s *Store) Invalidate() {
	s.overviews.Purge()
}

// CleanExpired removes stale overviews and returns how many were dropped
func (s *Store) CleanExpired() int {
	return s.overviews.CleanExpired()
}
