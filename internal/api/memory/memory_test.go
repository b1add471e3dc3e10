package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"spese-cli/internal/api"
	"spese-cli/internal/core"
)

type file struct {
	name string
	data []byte
}

func (f file) Name() string      { return f.name }
func (f file) MIMEType() string  { return "audio/wav" }
func (f file) Reader() io.Reader { return bytes.NewReader(f.data) }

func TestNewFromFilesSeedsAndDedupe(t *testing.T) {
	dir := t.TempDir()
	// No files -> defaults
	g := NewFromFiles(dir)
	cats, _ := g.ListCategories(context.Background())
	subs, _ := g.ListSubcategories(context.Background())
	if len(cats) == 0 || len(subs) == 0 {
		t.Fatalf("expected defaults when files missing")
	}

	mustWrite := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("seed_categories.txt", "# header\nA\nB\nA\n\n")
	mustWrite("seed_subcategories.txt", "# header\nA: X\nA: X\nB: Y\nC: orphan\nnocolon\n")

	g = NewFromFiles(dir)
	cats, _ = g.ListCategories(context.Background())
	subs, _ = g.ListSubcategories(context.Background())
	if len(cats) != 2 || cats[0].Name != "A" || cats[1].Name != "B" {
		t.Fatalf("unexpected cats: %v", cats)
	}
	if len(subs) != 2 || subs[0].Name != "X" || subs[0].CategoryID != cats[0].ID || subs[1].CategoryID != cats[1].ID {
		t.Fatalf("unexpected subs: %v", subs)
	}
}

func TestUploadWithoutRecognizerIsUnprocessable(t *testing.T) {
	g := New([]string{"Cibo"}, []string{"Cibo: Pizza"})
	_, err := g.UploadExpense(context.Background(), file{"memo.wav", []byte("RIFF")})
	if !errors.Is(err, api.ErrUnprocessable) {
		t.Fatalf("expected ErrUnprocessable, got %v", err)
	}
	if g.Uploads() != 1 {
		t.Fatalf("expected one upload recorded")
	}
}

func TestUploadWithRecognizer(t *testing.T) {
	g := New([]string{"Cibo"}, []string{"Cibo: Pizza"}, WithRecognizer(func(name, _ string, data []byte) (core.ExpenseInput, bool) {
		return core.ExpenseInput{
			Description:   "Margherita",
			Amount:        decimal.RequireFromString("8.5"),
			CategoryID:    1,
			SubcategoryID: 2,
			Date:          core.NewDate(2025, 5, 1),
		}, string(data) == "RIFF"
	}))

	res, err := g.UploadExpense(context.Background(), file{"memo.wav", []byte("RIFF")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Expense.Category != "Cibo" || res.Expense.Subcategory != "Pizza" || res.Expense.ID == 0 {
		t.Fatalf("unexpected expense %+v", res.Expense)
	}

	if _, err := g.UploadExpense(context.Background(), file{"memo.wav", []byte("noise")}); !errors.Is(err, api.ErrUnprocessable) {
		t.Fatalf("expected unprocessable for unrecognized upload, got %v", err)
	}
}

func TestDeleteCategoryRequiresForce(t *testing.T) {
	ctx := context.Background()
	g := New([]string{"Casa", "Cibo"}, []string{"Casa: Affitto", "Casa: Bollette", "Cibo: Pizza"})

	err := g.DeleteCategory(ctx, 1, false)
	if !errors.Is(err, api.ErrHasSubcategories) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := g.DeleteCategory(ctx, 1, true); err != nil {
		t.Fatalf("forced delete: %v", err)
	}

	cats, _ := g.ListCategories(ctx)
	subs, _ := g.ListSubcategories(ctx)
	if len(cats) != 1 || cats[0].Name != "Cibo" {
		t.Fatalf("unexpected categories %v", cats)
	}
	if len(subs) != 1 || subs[0].Name != "Pizza" {
		t.Fatalf("subcategories of the deleted category should be gone: %v", subs)
	}

	if err := g.DeleteCategory(ctx, 99, true); api.KindOf(err) != api.KindServer {
		t.Fatalf("expected not found server error, got %v", err)
	}
}

func TestExpensePagination(t *testing.T) {
	ctx := context.Background()
	g := New([]string{"Cibo"}, []string{"Cibo: Pizza"})
	for day := 1; day <= 5; day++ {
		_, err := g.CreateExpense(ctx, core.ExpenseInput{
			Description:   "pizza",
			Amount:        decimal.NewFromInt(int64(day)),
			CategoryID:    1,
			SubcategoryID: 2,
			Date:          core.NewDate(2025, 4, day),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, _ := g.ListExpenses(ctx, api.ListQuery{Page: 2, Limit: 2})
	if page.Total != 5 || page.TotalPages != 3 || len(page.Items) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Items[0].Date.Day() != 3 {
		t.Fatalf("expected newest first, got day %d", page.Items[0].Date.Day())
	}

	filtered, _ := g.ListExpenses(ctx, api.ListQuery{From: core.NewDate(2025, 4, 4)})
	if filtered.Total != 2 {
		t.Fatalf("expected 2 expenses from the 4th, got %d", filtered.Total)
	}

	recent, _ := g.RecentExpenses(ctx, 1)
	if len(recent) != 1 || recent[0].Date.Day() != 5 {
		t.Fatalf("unexpected recent %v", recent)
	}
}

func TestCreateExpenseRejectsUnknownSubcategory(t *testing.T) {
	g := New([]string{"Cibo", "Casa"}, []string{"Cibo: Pizza"})
	_, err := g.CreateExpense(context.Background(), core.ExpenseInput{
		Description:   "x",
		Amount:        decimal.NewFromInt(1),
		CategoryID:    2,
		SubcategoryID: 3,
		Date:          core.NewDate(2025, 1, 1),
	})
	if api.KindOf(err) != api.KindServer {
		t.Fatalf("expected bad request, got %v", err)
	}
}
