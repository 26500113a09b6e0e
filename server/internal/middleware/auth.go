package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/devilmonastery/ara/internal/auth"
	"github.com/devilmonastery/ara/server/internal/session"
)

// AuthMiddleware resolves the session token into a principal
type AuthMiddleware struct {
	sessionManager *session.Manager
	tokens         *auth.JWTManager
	log            *slog.Logger
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(sessionManager *session.Manager, tokens *auth.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{
		sessionManager: sessionManager,
		tokens:         tokens,
		log:            slog.Default().With(slog.String("component", "auth_middleware")),
	}
}

// Authenticate puts the principal of a valid session in the request context.
// Requests without one pass through anonymously.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := m.sessionManager.GetToken(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := m.tokens.ValidateToken(token)
		if err != nil {
			m.log.Debug("ignoring session token", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetPrincipalInContext(r.Context(), principal)))
	})
}

// RequireAuth rejects requests without a principal with 401
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.GetPrincipalFromContext(r.Context()); err != nil {
			deny(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose principal is not an administrator.
// Anonymous requests get 401, authenticated non-admins 403.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := auth.RequireAdmin(r.Context())
		switch {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, auth.ErrUnauthorized):
			deny(w, http.StatusUnauthorized, "unauthorized")
		default:
			p, _ := auth.GetPrincipalFromContext(r.Context())
			m.log.Warn("admin access denied",
				slog.String("user_id", p.UserID),
				slog.String("path", r.URL.Path))
			deny(w, http.StatusForbidden, "forbidden")
		}
	})
}

func deny(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code})
}
