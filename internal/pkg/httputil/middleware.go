package httputil

import (
	"context"
	"net/http"
	"strings"

	"github.com/bissquit/user-service/internal/domain"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal stores the authenticated user in ctx.
func WithPrincipal(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, principalKey, user)
}

// Principal returns the authenticated user stored in ctx, or nil.
func Principal(ctx context.Context) *domain.User {
	if user, ok := ctx.Value(principalKey).(*domain.User); ok {
		return user
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively. It returns "" when the header is
// absent or uses another scheme.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
