// Package catalog keeps the category tree cached on the client
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"spese-cli/internal/api"
	"spese-cli/internal/cache"
	"spese-cli/internal/core"
	"spese-cli/internal/i18n"
	"spese-cli/internal/log"
)

// DefaultTTL is how long fetched categories are reused
const DefaultTTL = 5 * time.Minute

var (
	ErrUnknownCategory    = errors.New("unknown category")
	ErrUnknownSubcategory = errors.New("unknown subcategory")
)

// DeleteConflict is returned when a category cannot be deleted without
// also deleting its subcategories. Retry with force to cascade.
type DeleteConflict struct {
	CategoryID    int64
	CategoryName  string
	Subcategories int
	// Message is localized and ready to show
	Message string
	err     error
}

func (e *DeleteConflict) Error() string { return e.Message }
func (e *DeleteConflict) Unwrap() error { return e.err }

type snapshot struct {
	cats []core.Category
	subs []core.Subcategory
}

type Store struct {
	gw        api.CategoryGateway
	data      *cache.Fresh[snapshot]
	localizer *i18n.Localizer
	logger    *log.Logger
}

type options struct {
	ttl       time.Duration
	clock     func() time.Time
	localizer *i18n.Localizer
	logger    *log.Logger
}

type Option func(*options)

func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func WithLocalizer(l *i18n.Localizer) Option {
	return func(o *options) { o.localizer = l }
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func New(gw api.CategoryGateway, opts ...Option) *Store {
	o := options{ttl: DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.localizer == nil {
		o.localizer = i18n.New("en", "EUR")
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
		data:      cache.NewFresh[snapshot](o.ttl, cacheOpts...),
		localizer: o.localizer,
		logger:    o.logger.WithComponent(log.ComponentCatalog),
	}
}

// fetch loads categories and subcategories concurrently
func (s *Store) fetch(ctx context.Context) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cats, err := s.gw.ListCategories(gctx)
		if err != nil {
			return fmt.Errorf("failed to list categories: %w", err)
		}
		snap.cats = cats
		return nil
	})
	g.Go(func() error {
		subs, err := s.gw.ListSubcategories(gctx)
		if err != nil {
			return fmt.Errorf("failed to list subcategories: %w", err)
		}
		snap.subs = subs
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("Category fetch failed", log.FieldError, err.Error())
		return snapshot{}, err
	}
	s.logger.Debug("Categories fetched",
		"categories", len(snap.cats),
		"subcategories", len(snap.subs))
	return snap, nil
}

// Categories returns the category tree, fetching it only when the cached
// copy is older than the freshness window.
func (s *Store) Categories(ctx context.Context) (core.CategoryTree, error) {
	snap, err := s.data.GetOrRefresh(ctx, s.fetch)
	if err != nil {
		return nil, err
	}
	return core.JoinCategories(snap.cats, snap.subs), nil
}

// Refresh fetches the tree regardless of its age
func (s *Store) Refresh(ctx context.Context) (core.CategoryTree, error) {
	snap, err := s.data.Refresh(ctx, s.fetch)
	if err != nil {
		return nil, err
	}
	return core.JoinCategories(snap.cats, snap.subs), nil
}

// Cached returns the tree held locally without fetching, and whether it is
// still fresh.
func (s *Store) Cached() (core.CategoryTree, bool) {
	snap, fresh := s.data.Peek()
	return core.JoinCategories(snap.cats, snap.subs), fresh
}

func (s *Store) Invalidate() {
	s.data.Invalidate()
}

// Resolve maps category and subcategory names to IDs, case-insensitively
func (s *Store) Resolve(ctx context.Context, category, subcategory string) (int64, int64, error) {
	tree, err := s.Categories(ctx)
	if err != nil {
		return 0, 0, err
	}
	node, ok := tree.FindByName(category)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownCategory, strings.TrimSpace(category))
	}
	sub, ok := node.Subcategory(subcategory)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q in %q", ErrUnknownSubcategory, strings.TrimSpace(subcategory), node.Name)
	}
	return node.ID, sub.ID, nil
}

func (s *Store) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	c, err := s.gw.CreateCategory(ctx, name)
	if err != nil {
		return core.Category{}, err
	}
	s.data.Update(func(snap snapshot) snapshot {
		snap.cats = append(append([]core.Category(nil), snap.cats...), c)
		return snap
	})
	return c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, id int64, name string) (core.Category, error) {
	c, err := s.gw.UpdateCategory(ctx, id, name)
	if err != nil {
		return core.Category{}, err
	}
	s.data.Update(func(snap snapshot) snapshot {
		cats := append([]core.Category(nil), snap.cats...)
		for i := range cats {
			if cats[i].ID == c.ID {
				cats[i] = c
			}
		}
		snap.cats = cats
		return snap
	})
	return c, nil
}

// DeleteCategory deletes a category. Without force a category that still
// has subcategories yields a *DeleteConflict; with force the category and
// all of its subcategories are removed.
func (s *Store) DeleteCategory(ctx context.Context, id int64, force bool) error {
	err := s.gw.DeleteCategory(ctx, id, force)
	if err != nil {
		if errors.Is(err, api.ErrHasSubcategories) {
			return s.conflict(id, err)
		}
		return err
	}

	s.data.Update(func(snap snapshot) snapshot {
		var cats []core.Category
		for _, c := range snap.cats {
			if c.ID != id {
				cats = append(cats, c)
			}
		}
		var subs []core.Subcategory
		for _, sub := range snap.subs {
			if sub.CategoryID != id {
				subs = append(subs, sub)
			}
		}
		return snapshot{cats: cats, subs: subs}
	})
	s.logger.Info("Category deleted", log.FieldCategoryID, id, "force", force)
	return nil
}

func (s *Store) conflict(id int64, err error) *DeleteConflict {
	name := fmt.Sprintf("#%d", id)
	count := 0
	tree, _ := s.Cached()
	if node, ok := tree.Find(id); ok {
		name = node.Name
		count = len(node.Subcategories)
	}
	return &DeleteConflict{
		CategoryID:    id,
		CategoryName:  name,
		Subcategories: count,
		Message:       s.localizer.T(i18n.MsgCategoryHasSubcategories, name),
		err:           err,
	}
}

func (s *Store) CreateSubcategory(ctx context.Context, name string, categoryID int64) (core.Subcategory, error) {
	sub, err := s.gw.CreateSubcategory(ctx, name, categoryID)
	if err != nil {
		return core.Subcategory{}, err
	}
	s.data.Update(func(snap snapshot) snapshot {
		snap.subs = append(append([]core.Subcategory(nil), snap.subs...), sub)
		return snap
	})
	return sub, nil
}

func (s *Store) UpdateSubcategory(ctx context.Context, id int64, name string, categoryID int64) (core.Subcategory, error) {
	sub, err := s.gw.UpdateSubcategory(ctx, id, name, categoryID)
	if err != nil {
		return core.Subcategory{}, err
	}
	s.data.Update(func(snap snapshot) snapshot {
		subs := append([]core.Subcategory(nil), snap.subs...)
		for i := range subs {
			if subs[i].ID == sub.ID {
				subs[i] = sub
			}
		}
		snap.subs = subs
		return snap
	})
	return sub, nil
}

func (s *Store) DeleteSubcategory(ctx context.Context, id int64) error {
	if err := s.gw.DeleteSubcategory(ctx, id); err != nil {
		return err
	}
	s.data.Update(func(snap snapshot) snapshot {
		var subs []core.Subcategory
		for _, sub := range snap.subs {
			if sub.ID != id {
				subs = append(subs, sub)
			}
		}
		snap.subs = subs
		return snap
	})
	return nil
}
