package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"spese-cli/internal/core"
	"spese-cli/internal/i18n"
	"spese-cli/internal/storage"
)

type Formatter struct {
	w   io.Writer
	loc *i18n.Localizer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w, loc: i18n.New("en", "EUR")}
}

// WithLocalizer formats amounts with l
func (f *Formatter) WithLocalizer(l *i18n.Localizer) *Formatter {
	if l != nil {
		f.loc = l
	}
	return f
}

// T renders a localized message
func (f *Formatter) T(key string, args ...any) string {
	return f.loc.T(key, args...)
}

func (f *Formatter) RecordingStarted() {
	fmt.Fprintf(f.w, "🎙️  Recording... press Enter to stop, p to pause, q to discard\n")
}

func (f *Formatter) RecordingPaused(elapsed int) {
	fmt.Fprintf(f.w, "⏸️  Paused at %s\n", formatDuration(time.Duration(elapsed)*time.Second))
}

func (f *Formatter) RecordingStopped(duration time.Duration) {
	fmt.Fprintf(f.w, "⏹️  Recording stopped (%s)\n", formatDuration(duration))
}

func (f *Formatter) Uploading(name string, size int) {
	fmt.Fprintf(f.w, "📤 Uploading %s (%s)...\n", name, formatBytes(size))
}

func (f *Formatter) ExpenseSubmitted(e core.Expense) {
	fmt.Fprintf(f.w, "✅ #%d %s  %s  %s / %s  %s\n",
		e.ID, e.Description, f.loc.Amount(e.Amount), e.Category, e.Subcategory, e.Date)
}

// Notification prints one expense.submitted message
func (f *Formatter) Notification(id int64, desc, amount, category, subcategory, source string, at time.Time) {
	if d, err := core.ParseAmount(amount); err == nil {
		amount = f.loc.Amount(d)
	}
	fmt.Fprintf(f.w, "🔔 %s  #%d %s  %s  %s / %s  (%s)\n",
		at.Local().Format("15:04:05"), id, desc, amount, category, subcategory, source)
}

func (f *Formatter) Queued(id string) {
	fmt.Fprintf(f.w, "📥 Queued for retry: %s\n", id)
}

func (f *Formatter) WaveformSaved(path string) {
	fmt.Fprintf(f.w, "🖼️  Waveform saved: %s\n", path)
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

// Frame redraws a text waveform in place
func (f *Formatter) Frame(canvas string, status string) {
	lines := strings.Count(canvas, "\n") + 2
	fmt.Fprintf(f.w, "%s\n%s\n\033[%dA", canvas, status, lines)
}

// Redraw replaces a block of up lines drawn by a previous Redraw and returns
// the height of the new one. The cursor is left after ask.
func (f *Formatter) Redraw(canvas, status, ask string, up int) int {
	if up > 0 {
		fmt.Fprintf(f.w, "\r\033[%dA\033[J", up)
	} else {
		fmt.Fprint(f.w, "\r\033[J")
	}
	fmt.Fprintf(f.w, "%s\n%s\n%s", canvas, status, ask)
	return strings.Count(canvas, "\n") + 2
}

// ClearFrame moves past the last drawn frame
func (f *Formatter) ClearFrame(canvas string) {
	fmt.Fprint(f.w, strings.Repeat("\n", strings.Count(canvas, "\n")+2))
}

func (f *Formatter) CategoryTree(tree core.CategoryTree) {
	if len(tree) == 0 {
		f.Info("No categories")
		return
	}
	fmt.Fprintf(f.w, "🗂️  Categories:\n\n")
	for _, node := range tree {
		fmt.Fprintf(f.w, "  %-4d %s\n", node.ID, node.Name)
		for _, sub := range node.Subcategories {
			fmt.Fprintf(f.w, "       └ %-4d %s\n", sub.ID, sub.Name)
		}
	}
}

func (f *Formatter) ExpenseTable(items []core.Expense) {
	if len(items) == 0 {
		f.Info("No expenses found")
		return
	}
	tw := tabwriter.NewWriter(f.w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tDATE\tAMOUNT\tDESCRIPTION\t CATEGORY\t")
	for _, e := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t %s / %s\t\n",
			e.ID, e.Date, f.loc.Amount(e.Amount), e.Description, e.Category, e.Subcategory)
	}
	tw.Flush()
}

func (f *Formatter) PageFooter(p core.Page[core.Expense]) {
	fmt.Fprintf(f.w, "\nPage %d, %d of %d expenses", p.Page, len(p.Items), p.Total)
	if p.HasNext() {
		fmt.Fprintf(f.w, " (--page %d for more)", p.Page+1)
	}
	fmt.Fprintln(f.w)
}

func (f *Formatter) MonthOverview(ov core.MonthOverview) {
	fmt.Fprintf(f.w, "📊 %04d-%02d: %s in %d expenses\n\n", ov.Year, ov.Month, f.loc.Amount(ov.Total), ov.Count)
	for _, c := range ov.ByCategory {
		fmt.Fprintf(f.w, "  %-20s %12s  %5.1f%%\n", c.Name, f.loc.Amount(c.Amount), c.Share)
	}
}

func (f *Formatter) OutboxStats(s storage.Stats) {
	fmt.Fprintf(f.w, "📦 Outbox: %d pending, %d processing, %d submitted, %d failed\n",
		s.Pending, s.Processing, s.Submitted, s.Failed)
}

func (f *Formatter) OutboxItems(items []storage.PendingUpload) {
	if len(items) == 0 {
		f.Info("Outbox is empty")
		return
	}
	tw := tabwriter.NewWriter(f.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tFILE\tSIZE\tATTEMPTS\tCREATED\tLAST ERROR")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			it.ID, it.Status, it.FileName, formatBytes(int(it.Size)), it.Attempts,
			it.CreatedAt.Local().Format("2006-01-02 15:04"), it.LastError)
	}
	tw.Flush()
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// Writer returns the underlying writer, for prompts
func (f *Formatter) Writer() io.Writer {
	return f.w
}
