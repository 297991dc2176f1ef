package locale

import (
	"context"
	"testing"
)

func TestNegotiate(t *testing.T) {
	n := NewNegotiator([]string{"en", "ar"})

	cases := map[string]string{
		"":                        "en",
		"ar":                      "ar",
		"ar-EG,ar;q=0.9,en;q=0.5": "ar",
		"fr-FR":                   "en",
		"en-GB,en;q=0.8":          "en",
		"%%%":                     "en",
	}
	for header, want := range cases {
		if got := n.Negotiate(header); got != want {
			t.Fatalf("Negotiate(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestNegotiatorFallsBackWhenNothingConfigured(t *testing.T) {
	n := NewNegotiator([]string{"not a tag!"})
	if got := n.Default(); got != "en" {
		t.Fatalf("expected en default, got %q", got)
	}
	var missing *Negotiator
	if got := missing.Negotiate("ar"); got != "en" {
		t.Fatalf("nil negotiator should fall back to en, got %q", got)
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithLocale(context.Background(), "ar")
	if got := FromContext(ctx); got != "ar" {
		t.Fatalf("expected ar, got %q", got)
	}
	if got := FromContext(context.Background()); got != "" {
		t.Fatalf("expected empty locale, got %q", got)
	}
}
