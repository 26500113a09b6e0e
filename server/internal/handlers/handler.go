package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/devilmonastery/ara/internal/auth"
	"github.com/devilmonastery/ara/internal/auth/account"
	"github.com/devilmonastery/ara/internal/auth/provider"
	"github.com/devilmonastery/ara/internal/domain/repositories"
	"github.com/devilmonastery/ara/internal/domain/services"
	"github.com/devilmonastery/ara/server/internal/session"
)

// OAuthClient is the provider SDK as the handlers use it
type OAuthClient interface {
	AuthCodeURL(ctx context.Context, state, verifier string) (string, error)
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	FetchRawUser(ctx context.Context, token *oauth2.Token) (*account.RawUser, error)
}

// Options holds dependencies for all handlers
type Options struct {
	Registry    *provider.Registry
	Clients     map[string]OAuthClient // keyed by provider code
	Logins      *services.LoginService
	Users       *services.UserService
	Tokens      *auth.JWTManager
	Sessions    *session.Manager
	Health      repositories.HealthChecker
	FrontendURL string
	Logger      *slog.Logger
}

// Handler holds dependencies for all handlers
type Handler struct {
	registry       *provider.Registry
	clients        map[string]OAuthClient
	logins         *services.LoginService
	users          *services.UserService
	tokens         *auth.JWTManager
	sessionManager *session.Manager
	health         repositories.HealthChecker
	frontendURL    string
	log            *slog.Logger
}

// New creates a new handler with dependencies
func New(opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	clients := make(map[string]OAuthClient, len(opts.Clients))
	for code, c := range opts.Clients {
		clients[provider.Canonical(code)] = c
	}
	return &Handler{
		registry:       opts.Registry,
		clients:        clients,
		logins:         opts.Logins,
		users:          opts.Users,
		tokens:         opts.Tokens,
		sessionManager: opts.Sessions,
		health:         opts.Health,
		frontendURL:    opts.FrontendURL,
		log:            log.With(slog.String("component", "http_handler")),
	}
}

// client returns the OAuth client of a configured provider
func (h *Handler) client(name string) (OAuthClient, bool) {
	if _, ok := h.registry.Lookup(name); !ok {
		return nil, false
	}
	c, ok := h.clients[provider.Canonical(name)]
	return c, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// Health reports whether the store is reachable
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.HealthCheck(r.Context()); err != nil {
			h.log.Warn("health check failed", slog.String("error", err.Error()))
			http.Error(w, "UNAVAILABLE", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
