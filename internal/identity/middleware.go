package identity

import (
	"net/http"

	"github.com/bissquit/user-service/internal/domain"
	"github.com/bissquit/user-service/internal/pkg/ctxlog"
	"github.com/bissquit/user-service/internal/pkg/httputil"
)

// RequireAuth resolves the bearer token to a user and stores it as the
// request principal. Requests without a valid token get 401.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.service.Authenticate(r.Context(), httputil.BearerToken(r))
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}

		ctx := httputil.WithPrincipal(r.Context(), user)
		ctx = ctxlog.With(ctx, "user_id", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles rejects principals whose role is not in allowed with 403.
// It must run after RequireAuth.
func (h *Handler) RequireRoles(allowed domain.RoleSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := h.service.Authorize(httputil.Principal(r.Context()), allowed); err != nil {
				h.handleServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
