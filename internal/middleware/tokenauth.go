// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/akorchagin/stash/internal/models"
)

type ctxKey string

const userKey ctxKey = "user"

// TokenValidator resolves a bearer token to the authenticated user.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.User, error)
}

// TokenAuth is a middleware that enforces bearer-token authentication.
//
// The /auth/signup and /auth/login endpoints are excluded so new users can
// obtain a token. Every other request must carry "Authorization: Bearer
// <token>"; an absent, unknown or expired token is rejected with 401, the
// distinguished status that tells clients to drop their stored credential.
//
// On success the resolved user is stored in the request context for
// downstream handlers.
func TokenAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/auth/signup" || r.URL.Path == "/auth/login" {
				// Allow obtaining a token without one
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}
			user, err := v.ValidateToken(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext extracts the authenticated user from the request
// context. Returns nil if not present.
func GetUserFromContext(ctx context.Context) *models.User {
	val := ctx.Value(userKey)
	if u, ok := val.(*models.User); ok {
		return u
	}
	return nil
}

// WithUser returns a context carrying the given user, for tests that call
// handlers directly without the middleware chain.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
