package i18n

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

func TestNewMatchesLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want language.Tag
	}{
		{"it", language.Italian},
		{"it-IT", language.Italian},
		{"en-GB", language.English},
		{"de", language.English},
		{"", language.English},
	}
	for _, tt := range tests {
		if got := New(tt.in, "EUR").Language(); got != tt.want {
			t.Fatalf("New(%q).Language() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCatalogsAreComplete(t *testing.T) {
	en := messages[language.English]
	it := messages[language.Italian]
	for key := range en {
		if _, ok := it[key]; !ok {
			t.Fatalf("italian catalog missing %q", key)
		}
	}
	if len(en) != len(it) {
		t.Fatalf("catalog sizes differ: en=%d it=%d", len(en), len(it))
	}
}

func TestTranslate(t *testing.T) {
	en := New("en", "EUR")
	it := New("it", "EUR")

	if en.T(MsgUploadUnprocessable) == en.T(MsgGeneric) {
		t.Fatalf("unprocessable message must differ from generic")
	}
	if !strings.Contains(it.T(MsgPermissionDenied), "microfono") {
		t.Fatalf("unexpected italian message %q", it.T(MsgPermissionDenied))
	}
	got := en.T(MsgCategoryHasSubcategories, "Casa")
	if !strings.Contains(got, `"Casa"`) {
		t.Fatalf("expected category name in message, got %q", got)
	}
	if got := en.T(MsgUploadServer, "quota exceeded"); !strings.HasSuffix(got, "quota exceeded") {
		t.Fatalf("server message should be verbatim, got %q", got)
	}
}

func TestAmount(t *testing.T) {
	d := decimal.RequireFromString("12.5")
	if got := New("en", "EUR").Amount(d); !strings.Contains(got, "12.50") || !strings.Contains(got, "€") {
		t.Fatalf("unexpected english amount %q", got)
	}
	if got := New("it", "EUR").Amount(d); !strings.Contains(got, "12,50") {
		t.Fatalf("unexpected italian amount %q", got)
	}
	if got := New("en", "bogus").Amount(d); !strings.Contains(got, "€") {
		t.Fatalf("unknown currency should fall back to EUR, got %q", got)
	}
}
