// Package memory is an in-process implementation of the backend API used
// for offline work and tests.
package memory

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"spese-cli/internal/api"
	"spese-cli/internal/core"
)

// Recognizer extracts an expense from an uploaded file. ok is false when
// nothing could be identified.
type Recognizer func(name, mimeType string, data []byte) (in core.ExpenseInput, ok bool)

type Gateway struct {
	mu         sync.Mutex
	cats       []core.Category
	subs       []core.Subcategory
	items      []core.Expense
	nextID     int64
	recognizer Recognizer
	uploads    int
}

var _ api.Gateway = (*Gateway)(nil)

type Option func(*Gateway)

// WithRecognizer sets how uploads are turned into expenses. Without one
// every upload is unprocessable.
func WithRecognizer(r Recognizer) Option {
	return func(g *Gateway) { g.recognizer = r }
}

// New builds a gateway from category names and "Category: Subcategory"
// pairs.
func New(cats []string, subs []string, opts ...Option) *Gateway {
	g := &Gateway{nextID: 1}
	for _, name := range dedupe(cats) {
		g.cats = append(g.cats, core.Category{ID: g.id(), Name: name})
	}
	for _, line := range dedupe(subs) {
		parent, name, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		cat, found := g.categoryByName(strings.TrimSpace(parent))
		if !found {
			continue
		}
		g.subs = append(g.subs, core.Subcategory{ID: g.id(), Name: strings.TrimSpace(name), CategoryID: cat.ID})
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewFromFiles seeds the gateway from seed_categories.txt and
// seed_subcategories.txt in base.
func NewFromFiles(base string, opts ...Option) *Gateway {
	cats := readLines(filepath.Join(base, "seed_categories.txt"))
	subs := readLines(filepath.Join(base, "seed_subcategories.txt"))
	if len(cats) == 0 {
		cats = []string{"Casa", "Cibo", "Trasporti"}
	}
	if len(subs) == 0 {
		subs = []string{"Casa: Generale", "Cibo: Supermercato", "Cibo: Ristorante", "Trasporti: Generale"}
	}
	return New(cats, subs, opts...)
}

func (g *Gateway) id() int64 {
	id := g.nextID
	g.nextID++
	return id
}

// Uploads returns how many uploads were received
func (g *Gateway) Uploads() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.uploads
}

func (g *Gateway) UploadExpense(_ context.Context, f api.File) (*api.UploadResult, error) {
	const path = "/api/expenses/upload"
	if f == nil {
		return nil, &api.Error{Kind: api.KindRequestSetup, Method: http.MethodPost, Path: path, Message: "no file to upload"}
	}
	data, err := readAll(f)
	if err != nil {
		return nil, &api.Error{Kind: api.KindRequestSetup, Method: http.MethodPost, Path: path, Err: err}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploads++

	if g.recognizer == nil {
		return nil, unprocessable(path)
	}
	in, ok := g.recognizer(f.Name(), f.MIMEType(), data)
	if !ok {
		return nil, unprocessable(path)
	}
	exp, err := g.createLocked(in)
	if err != nil {
		return nil, &api.Error{Kind: api.KindUnprocessable, StatusCode: 422, Method: http.MethodPost, Path: path, Message: err.Error()}
	}
	return &api.UploadResult{Message: "Expense created", Expense: exp}, nil
}

func unprocessable(path string) *api.Error {
	return &api.Error{
		Kind:       api.KindUnprocessable,
		StatusCode: 422,
		Method:     http.MethodPost,
		Path:       path,
		Message:    "no expense could be identified",
	}
}

func notFound(method, path, what string) *api.Error {
	return &api.Error{Kind: api.KindServer, StatusCode: 404, Method: method, Path: path, Message: what + " not found"}
}

func badRequest(method, path string, err error) *api.Error {
	return &api.Error{Kind: api.KindServer, StatusCode: 400, Method: method, Path: path, Message: err.Error()}
}

func (g *Gateway) ListCategories(context.Context) ([]core.Category, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]core.Category(nil), g.cats...), nil
}

func (g *Gateway) ListSubcategories(context.Context) ([]core.Subcategory, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]core.Subcategory(nil), g.subs...), nil
}

func (g *Gateway) CreateCategory(_ context.Context, name string) (core.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, badRequest(http.MethodPost, "/api/categories", core.ErrEmptyName)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c := core.Category{ID: g.id(), Name: name}
	g.cats = append(g.cats, c)
	return c, nil
}

func (g *Gateway) UpdateCategory(_ context.Context, id int64, name string) (core.Category, error) {
	const path = "/api/categories/{id}"
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, badRequest(http.MethodPut, path, core.ErrEmptyName)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.cats {
		if g.cats[i].ID == id {
			g.cats[i].Name = name
			return g.cats[i], nil
		}
	}
	return core.Category{}, notFound(http.MethodPut, path, "category")
}

func (g *Gateway) DeleteCategory(_ context.Context, id int64, force bool) error {
	const path = "/api/categories/{id}"
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := -1
	for i, c := range g.cats {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return notFound(http.MethodDelete, path, "category")
	}

	var kept []core.Subcategory
	for _, s := range g.subs {
		if s.CategoryID != id {
			kept = append(kept, s)
		}
	}
	if len(kept) != len(g.subs) && !force {
		return &api.Error{
			Kind:       api.KindConflict,
			StatusCode: 409,
			Code:       api.CodeHasSubcategories,
			Method:     http.MethodDelete,
			Path:       path,
			Message:    "category has associated subcategories",
		}
	}

	g.subs = kept
	g.cats = append(g.cats[:idx], g.cats[idx+1:]...)
	return nil
}

func (g *Gateway) CreateSubcategory(_ context.Context, name string, categoryID int64) (core.Subcategory, error) {
	const path = "/api/subcategories"
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Subcategory{}, badRequest(http.MethodPost, path, core.ErrEmptyName)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.categoryByID(categoryID); !ok {
		return core.Subcategory{}, notFound(http.MethodPost, path, "category")
	}
	s := core.Subcategory{ID: g.id(), Name: name, CategoryID: categoryID}
	g.subs = append(g.subs, s)
	return s, nil
}

func (g *Gateway) UpdateSubcategory(_ context.Context, id int64, name string, categoryID int64) (core.Subcategory, error) {
	const path = "/api/subcategories/{id}"
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Subcategory{}, badRequest(http.MethodPut, path, core.ErrEmptyName)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.categoryByID(categoryID); !ok {
		return core.Subcategory{}, notFound(http.MethodPut, path, "category")
	}
	for i := range g.subs {
		if g.subs[i].ID == id {
			g.subs[i].Name = name
			g.subs[i].CategoryID = categoryID
			return g.subs[i], nil
		}
	}
	return core.Subcategory{}, notFound(http.MethodPut, path, "subcategory")
}

func (g *Gateway) DeleteSubcategory(_ context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, s := range g.subs {
		if s.ID == id {
			g.subs = append(g.subs[:i], g.subs[i+1:]...)
			return nil
		}
	}
	return notFound(http.MethodDelete, "/api/subcategories/{id}", "subcategory")
}

func (g *Gateway) ListExpenses(_ context.Context, q api.ListQuery) (core.Page[core.Expense], error) {
	q = q.Normalize()
	g.mu.Lock()
	defer g.mu.Unlock()

	var matched []core.Expense
	for _, e := range g.items {
		if !q.From.IsZero() && e.Date.Before(q.From.Time) {
			continue
		}
		if !q.To.IsZero() && e.Date.After(q.To.Time) {
			continue
		}
		matched = append(matched, e)
	}
	sortNewestFirst(matched)

	page := core.Page[core.Expense]{Page: q.Page, PageSize: q.Limit, Total: len(matched)}
	page.TotalPages = (len(matched) + q.Limit - 1) / q.Limit
	start := (q.Page - 1) * q.Limit
	if start < len(matched) {
		end := min(start+q.Limit, len(matched))
		page.Items = append([]core.Expense(nil), matched[start:end]...)
	}
	return page, nil
}

func (g *Gateway) RecentExpenses(_ context.Context, limit int) ([]core.Expense, error) {
	if limit < 1 {
		limit = 5
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	items := append([]core.Expense(nil), g.items...)
	sortNewestFirst(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (g *Gateway) GetExpense(_ context.Context, id int64) (core.Expense, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.items {
		if e.ID == id {
			return e, nil
		}
	}
	return core.Expense{}, notFound(http.MethodGet, "/api/expenses/{id}", "expense")
}

func (g *Gateway) CreateExpense(_ context.Context, in core.ExpenseInput) (core.Expense, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	exp, err := g.createLocked(in)
	if err != nil {
		return core.Expense{}, badRequest(http.MethodPost, "/api/expenses", err)
	}
	return exp, nil
}

func (g *Gateway) UpdateExpense(_ context.Context, id int64, in core.ExpenseInput) (core.Expense, error) {
	const path = "/api/expenses/{id}"
	g.mu.Lock()
	defer g.mu.Unlock()
	exp, err := g.resolveLocked(in)
	if err != nil {
		return core.Expense{}, badRequest(http.MethodPut, path, err)
	}
	for i := range g.items {
		if g.items[i].ID == id {
			exp.ID = id
			g.items[i] = exp
			return exp, nil
		}
	}
	return core.Expense{}, notFound(http.MethodPut, path, "expense")
}

func (g *Gateway) DeleteExpense(_ context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.items {
		if e.ID == id {
			g.items = append(g.items[:i], g.items[i+1:]...)
			return nil
		}
	}
	return notFound(http.MethodDelete, "/api/expenses/{id}", "expense")
}

func (g *Gateway) createLocked(in core.ExpenseInput) (core.Expense, error) {
	exp, err := g.resolveLocked(in)
	if err != nil {
		return core.Expense{}, err
	}
	exp.ID = g.id()
	g.items = append(g.items, exp)
	return exp, nil
}

// resolveLocked validates in and fills category names from their IDs
func (g *Gateway) resolveLocked(in core.ExpenseInput) (core.Expense, error) {
	if err := in.Validate(); err != nil {
		return core.Expense{}, err
	}
	cat, ok := g.categoryByID(in.CategoryID)
	if !ok {
		return core.Expense{}, core.ErrEmptyCategory
	}
	var sub core.Subcategory
	found := false
	for _, s := range g.subs {
		if s.ID == in.SubcategoryID && s.CategoryID == cat.ID {
			sub, found = s, true
			break
		}
	}
	if !found {
		return core.Expense{}, core.ErrEmptySubcategory
	}
	return core.Expense{
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount.Round(2),
		Category:    cat.Name,
		Subcategory: sub.Name,
		Date:        in.Date,
	}, nil
}

func (g *Gateway) categoryByID(id int64) (core.Category, bool) {
	for _, c := range g.cats {
		if c.ID == id {
			return c, true
		}
	}
	return core.Category{}, false
}

func (g *Gateway) categoryByName(name string) (core.Category, bool) {
	for _, c := range g.cats {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return core.Category{}, false
}

func sortNewestFirst(items []core.Expense) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date.Time) {
			return items[i].Date.After(items[j].Date.Time)
		}
		return items[i].ID > items[j].ID
	})
}

func readAll(f api.File) ([]byte, error) {
	return io.ReadAll(f.Reader())
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
