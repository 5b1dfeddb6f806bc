package rbac

import (
	"log/slog"
	"net/http"

	"github.com/sentra-auth/sentra/internal/platform/httpx"
	"github.com/sentra-auth/sentra/internal/shared"
)

// Middleware wires authorization checks for HTTP handlers. It expects the
// token middleware to have placed the verified principal identifier in the
// request context; authorization itself is always re-resolved live.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireRole ensures the principal currently holds at least one of the
// given roles.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return m.require(func(r *http.Request, principalID int64) (bool, error) {
		return m.Service.RequireRole(r.Context(), principalID, roles...)
	})
}

// RequirePermission ensures the principal's effective permission set
// contains at least one of the given permissions.
func (m Middleware) RequirePermission(perms ...string) func(http.Handler) http.Handler {
	return m.require(func(r *http.Request, principalID int64) (bool, error) {
		for _, perm := range perms {
			ok, err := m.Service.RequirePermission(r.Context(), principalID, perm)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	})
}

func (m Middleware) require(check func(*http.Request, int64) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principalID, ok := shared.PrincipalIDFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrTokenMissing)
				return
			}
			authorized, err := check(r, principalID)
			if err != nil {
				// A principal deleted after token issuance resolves to
				// not-found and must deny, not crash.
				if m.Logger != nil {
					m.Logger.Warn("authorization check", slog.Int64("principal", principalID), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !authorized {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
