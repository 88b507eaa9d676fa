package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"bookstore/internal/web"
)

type contextKey struct{}

// Verifier checks bearer tokens.
type Verifier interface {
	Verify(token string) (Principal, error)
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored by Authenticate.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// UserID returns the authenticated user's id, or uuid.Nil outside Authenticate.
func UserID(ctx context.Context) uuid.UUID {
	p, _ := FromContext(ctx)
	return p.UserID
}

// Authenticate rejects requests without a valid bearer token.
func Authenticate(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if header == "" || !found || token == "" {
				web.WriteError(w, http.StatusUnauthorized, "authorization header is missing")
				return
			}

			principal, err := v.Verify(token)
			if err != nil {
				web.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole lets through only principals holding one of roles. It must run after Authenticate.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := FromContext(r.Context())
			if !ok {
				web.WriteError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			web.WriteError(w, http.StatusForbidden, "insufficient role")
		})
	}
}
