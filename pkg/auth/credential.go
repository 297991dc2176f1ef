package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerScheme = "bearer"

// Credential is the bearer token the storefront UI forwards on behalf of a shopper.
// Tokens are issued and verified by the remote API; this service only relays them.
type Credential string

// FromHeader extracts the credential from an Authorization header value.
// Both "Bearer <token>" and a bare token are accepted.
func FromHeader(raw string) Credential {
	token := strings.TrimSpace(raw)
	if scheme, rest, found := strings.Cut(token, " "); found && strings.EqualFold(scheme, bearerScheme) {
		token = strings.TrimSpace(rest)
	} else if strings.EqualFold(token, bearerScheme) {
		token = ""
	}
	return Credential(token)
}

// Empty reports whether no token was supplied.
func (c Credential) Empty() bool {
	return strings.TrimSpace(string(c)) == ""
}

// Header renders the Authorization header value forwarded upstream.
func (c Credential) Header() string {
	return "Bearer " + string(c)
}

// Scope returns a stable, non-reversible key for per-shopper state.
func (c Credential) Scope() string {
	if c.Empty() {
		return ""
	}
	sum := sha256.Sum256([]byte(c))
	return hex.EncodeToString(sum[:12])
}

// Claims is the subset of token claims the storefront reads without verifying the signature.
type Claims struct {
	Subject   string
	ExpiresAt *time.Time
}

// Peek decodes the token payload without verification. Opaque tokens return ok=false.
func (c Credential) Peek() (Claims, bool) {
	if c.Empty() {
		return Claims{}, false
	}
	registered := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(string(c), registered); err != nil {
		return Claims{}, false
	}
	claims := Claims{Subject: registered.Subject}
	if registered.ExpiresAt != nil {
		exp := registered.ExpiresAt.Time
		claims.ExpiresAt = &exp
	}
	return claims, true
}

// KnownInvalid reports whether the credential can be rejected locally: it is empty,
// or it is a JWT whose exp claim has already passed. Anything else is left to the API.
func (c Credential) KnownInvalid(now time.Time) bool {
	if c.Empty() {
		return true
	}
	claims, ok := c.Peek()
	if !ok || claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(*claims.ExpiresAt)
}
