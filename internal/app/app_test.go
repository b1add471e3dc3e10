package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"spese-cli/internal/api"
	"spese-cli/internal/audio"
	"spese-cli/internal/config"
	"spese-cli/internal/i18n"
	"spese-cli/internal/services"
	"spese-cli/internal/session"
)

func memoryConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		DataBackend:      "memory",
		DataDirectory:    dir,
		CategoryTTL:      5 * time.Minute,
		OverviewCacheTTL: time.Minute,
		SampleRate:       16000,
		WaveformFPS:      20,
		OutboxDBPath:     filepath.Join(dir, "outbox.db"),
		SyncBatchSize:    5,
		SyncInterval:     time.Second,
		MaxRetries:       3,
		Language:         "it",
		Currency:         "EUR",
	}
}

func TestNewWiresMemoryBackend(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Outbox == nil || a.Processor == nil {
		t.Fatalf("outbox should be enabled")
	}
	if a.Publisher != nil {
		t.Fatalf("publisher should be nil without AMQP")
	}
	if a.Capturer == nil || a.Decoder == nil || a.Player == nil {
		t.Fatalf("media adapters should be wired")
	}
	if !a.Submission.CanQueue() {
		t.Fatalf("submission should be able to queue")
	}

	tree, err := a.Catalog.Categories(context.Background())
	if err != nil || len(tree) == 0 {
		t.Fatalf("expected default seed categories, got %v, %v", tree, err)
	}
}

func TestManualEntryInvalidatesOverview(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	ctx := context.Background()

	before, err := a.Expenses.MonthOverview(ctx, 2025, 3)
	if err != nil {
		t.Fatalf("MonthOverview: %v", err)
	}
	if before.Count != 0 {
		t.Fatalf("expected empty month, got %d", before.Count)
	}

	_, err = a.Manual.CreateExpense(ctx, services.ManualEntry{
		Description: "Spesa",
		Amount:      "12,50",
		Category:    "Cibo",
		Subcategory: "Supermercato",
		Date:        "2025-03-04",
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	after, err := a.Expenses.MonthOverview(ctx, 2025, 3)
	if err != nil {
		t.Fatalf("MonthOverview: %v", err)
	}
	if after.Count != 1 {
		t.Fatalf("expected the new expense in the overview, got %d", after.Count)
	}
}

func TestReceiptSessionUploadsThroughSubmission(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	var last session.Snapshot
	s := a.NewSession(audio.KindReceipt, nil, func(snap session.Snapshot) { last = snap })
	defer s.Close()

	if err := s.Start(context.Background()); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("receipt sessions cannot record, got %v", err)
	}
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if err := s.SelectFile("scontrino.png", png); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}

	// the memory backend recognizes nothing
	_, err = s.Upload(context.Background())
	if !errors.Is(err, api.ErrUnprocessable) {
		t.Fatalf("expected unprocessable, got %v", err)
	}
	if last.Status != session.StatusError || last.Message != a.Localizer.T(i18n.MsgUploadUnprocessable) {
		t.Fatalf("unexpected snapshot %+v", last)
	}
}
