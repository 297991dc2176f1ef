package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
)

type contextKey string

const (
	ctxCredential contextKey = "credential"
	ctxUserID     contextKey = "user_id"
)

// CredentialFromContext returns the shopper credential relayed to the storefront API.
func CredentialFromContext(ctx context.Context) auth.Credential {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCredential).(auth.Credential); ok {
		return v
	}
	return ""
}

// UserIDFromContext returns the token subject when the credential is a readable JWT. The
// signature is not verified, so the value is only fit for log correlation.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// WithCredential injects the shopper credential into the context.
func WithCredential(ctx context.Context, cred auth.Credential) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCredential, cred)
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}
