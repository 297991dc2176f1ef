package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// URLParam returns the trimmed route parameter, rejecting blanks.
func URLParam(r *http.Request, key string) (string, error) {
	value := strings.TrimSpace(chi.URLParam(r, key))
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "path parameter required").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

// ReturnPath picks where a sign-in prompt should send the shopper back to. Only
// same-site paths are honoured.
func ReturnPath(r *http.Request) string {
	candidate := strings.TrimSpace(r.URL.Query().Get("return_to"))
	if candidate == "" {
		candidate = strings.TrimSpace(r.Header.Get("X-Return-Path"))
	}
	if !strings.HasPrefix(candidate, "/") || strings.HasPrefix(candidate, "//") {
		return ""
	}
	return SanitizeString(candidate, 512)
}
