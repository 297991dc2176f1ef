package locale

import (
	"context"
	"strings"

	"golang.org/x/text/language"
)

const fallback = "en"

type ctxKey struct{}

// Negotiator picks the storefront locale forwarded to the backend from an Accept-Language header.
type Negotiator struct {
	matcher   language.Matcher
	supported []string
}

// NewNegotiator builds a negotiator; the first supported locale is the default.
func NewNegotiator(supported []string) *Negotiator {
	tags := make([]language.Tag, 0, len(supported))
	names := make([]string, 0, len(supported))
	for _, raw := range supported {
		tag, err := language.Parse(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		names = append(names, tag.String())
	}
	if len(tags) == 0 {
		tags = []language.Tag{language.English}
		names = []string{fallback}
	}
	return &Negotiator{matcher: language.NewMatcher(tags), supported: names}
}

// Default returns the locale used when nothing matches.
func (n *Negotiator) Default() string {
	if n == nil || len(n.supported) == 0 {
		return fallback
	}
	return n.supported[0]
}

// Negotiate returns the best supported locale for the header value.
func (n *Negotiator) Negotiate(acceptLanguage string) string {
	if n == nil {
		return fallback
	}
	if strings.TrimSpace(acceptLanguage) == "" {
		return n.Default()
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return n.Default()
	}
	_, idx, confidence := n.matcher.Match(tags...)
	if confidence == language.No || idx < 0 || idx >= len(n.supported) {
		return n.Default()
	}
	return n.supported[idx]
}

// WithLocale stores the negotiated locale on the context.
func WithLocale(ctx context.Context, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, value)
}

// FromContext returns the negotiated locale or an empty string.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}
