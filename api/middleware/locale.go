package middleware

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/pkg/locale"
)

// Locale negotiates the shopper's language once per request; the backend client forwards it.
func Locale(negotiator *locale.Negotiator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := negotiator.Negotiate(r.Header.Get("Accept-Language"))
			w.Header().Set("Content-Language", lang)
			next.ServeHTTP(w, r.WithContext(locale.WithLocale(r.Context(), lang)))
		})
	}
}
