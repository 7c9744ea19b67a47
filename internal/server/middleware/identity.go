package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/oddsline/settled/internal/domain"
)

type contextKey string

const authContextKey contextKey = "auth"

// Identity returns middleware that resolves which identity the request has
// proven control of and injects the resulting domain.AuthContext into the
// request context. Proof is a bearer token (Authorization header or
// X-API-Key) matched against the configured token-to-identity map.
//
// When insecure is true, requests may instead assert an identity through the
// X-Identity header with no token at all. This mode exists for local
// development only.
func Identity(tokens map[string]string, insecure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proven := domain.Authorize()

			if token := extractToken(r); token != "" {
				for known, identity := range tokens {
					// Constant-time comparison to prevent timing attacks.
					if subtle.ConstantTimeCompare([]byte(token), []byte(known)) == 1 {
						proven = domain.Authorize(identity)
						break
					}
				}
			}

			if insecure && len(proven) == 0 {
				if id := strings.TrimSpace(r.Header.Get("X-Identity")); id != "" {
					proven = domain.Authorize(id)
				}
			}

			ctx := context.WithValue(r.Context(), authContextKey, proven)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthFrom returns the AuthContext resolved for the request. Requests that
// proved no identity carry an empty context whose Require always fails.
func AuthFrom(ctx context.Context) domain.AuthContext {
	if auth, ok := ctx.Value(authContextKey).(domain.AuthorizedIdentities); ok {
		return auth
	}
	return domain.Authorize()
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}

	return ""
}
