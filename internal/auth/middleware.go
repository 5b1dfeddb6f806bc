package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sentra-auth/sentra/internal/platform/httpx"
	"github.com/sentra-auth/sentra/internal/shared"
)

const bearerPrefix = "Bearer "

// Middleware verifies the session token on protected routes and places the
// principal identifier in the request context. An absent token is a
// forbidden-class rejection; a present but invalid or expired token is an
// unauthorized-class rejection.
type Middleware struct {
	Codec  *TokenCodec
	Logger *slog.Logger
}

// Authenticate wraps next with bearer-token verification.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, bearerPrefix) {
			httpx.RespondError(w, shared.ErrTokenMissing)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		principalID, err := m.Codec.Verify(token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("token rejected", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		ctx := shared.ContextWithPrincipalID(r.Context(), principalID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
