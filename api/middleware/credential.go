package middleware

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Credential extracts the bearer token and seeds the request context with it. Requests
// without one pass through: the storefront API decides what an anonymous shopper may do,
// and the domain services reject locally only what is known to be invalid.
func Credential(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := auth.FromHeader(r.Header.Get("Authorization"))
			if cred.Empty() {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithCredential(r.Context(), cred)
			if claims, ok := cred.Peek(); ok && claims.Subject != "" {
				ctx = withUserID(ctx, claims.Subject)
				if logg != nil {
					ctx = logg.WithField(ctx, "user_id", claims.Subject)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
