package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerComponentNotDuplicated(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Output: &buf, Component: ComponentAPI})

	logger.WithComponent(ComponentSession).Info("hello")

	out := buf.String()
	if strings.Count(out, "component=") != 1 {
		t.Fatalf("expected exactly one component attribute, got %q", out)
	}
	if !strings.Contains(out, "component=session") {
		t.Fatalf("expected session component, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := Discard()
	ctx := WithContext(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatalf("expected same logger from context")
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("expected fallback logger")
	}
}

func TestLogAPICallLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelInfo, Output: &buf}))

	sl.LogAPICall(context.Background(), "GET", "/api/categories", "", 200, 12)
	if buf.Len() != 0 {
		t.Fatalf("successful calls should log at debug, got %q", buf.String())
	}

	sl.LogAPICall(context.Background(), "POST", "/api/expenses/upload", "req-1", 422, 40)
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("expected warn with request id, got %q", buf.String())
	}

	buf.Reset()
	sl.LogError(context.Background(), "boom", errors.New("bad"), OpUpload, nil)
	if !strings.Contains(buf.String(), "error=bad") || !strings.Contains(buf.String(), "operation=upload") {
		t.Fatalf("unexpected error log: %q", buf.String())
	}
}
