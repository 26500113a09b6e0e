package handlers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"github.com/devilmonastery/ara/internal/auth"
	"github.com/devilmonastery/ara/internal/auth/account"
	"github.com/devilmonastery/ara/internal/auth/provider"
	"github.com/devilmonastery/ara/internal/domain/services"
	"github.com/devilmonastery/ara/internal/pkg/logger"
	"github.com/devilmonastery/ara/internal/pkg/urlutil"
	"github.com/devilmonastery/ara/server/internal/session"
)

// Callback failure reasons besides those from services.LoginFailureReason
const (
	reasonInvalidState = "invalid_state"
	reasonAccessDenied = "access_denied"
)

type providerDTO struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
}

// Providers lists the configured login providers
func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	list := h.registry.List()
	out := make([]providerDTO, 0, len(list))
	for _, p := range list {
		out = append(out, providerDTO{Code: p.Code, DisplayName: p.DisplayName, Type: string(p.Type)})
	}
	writeJSON(w, http.StatusOK, out)
}

// Authorize starts the authorization code flow with PKCE
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	name := provider.Canonical(mux.Vars(r)["provider"])
	log := logger.WithProvider(h.log, name)

	client, ok := h.client(name)
	if !ok {
		writeError(w, http.StatusNotFound, services.ReasonUnknownProvider)
		return
	}

	state, err := generateState()
	if err != nil {
		log.Error("failed to generate state", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, services.ReasonInternal)
		return
	}
	verifier := oauth2.GenerateVerifier()

	authURL, err := client.AuthCodeURL(r.Context(), state, verifier)
	if err != nil {
		log.Error("failed to build authorization URL", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "provider_unavailable")
		return
	}

	if err := h.sessionManager.SaveLoginState(r, w, session.LoginState{State: state, Verifier: verifier, Provider: name}); err != nil {
		log.Error("failed to save session", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, services.ReasonInternal)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the flow: it checks state, exchanges the code, runs the
// login and stores the principal token. Every failure redirects to the
// frontend login page and leaves no session.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	name := provider.Canonical(mux.Vars(r)["provider"])
	log := logger.WithProvider(h.log, name)
	q := r.URL.Query()

	client, ok := h.client(name)
	if !ok {
		h.failLogin(w, r, services.ReasonUnknownProvider)
		return
	}

	pending, err := h.sessionManager.TakeLoginState(r, w)
	if err != nil {
		log.Warn("callback without pending login", slog.String("error", err.Error()))
		h.failLogin(w, r, reasonInvalidState)
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		log.Warn("provider denied authorization",
			slog.String("error", errParam),
			slog.String("error_description", q.Get("error_description")))
		h.failLogin(w, r, reasonAccessDenied)
		return
	}

	if pending.Provider != name || subtle.ConstantTimeCompare([]byte(pending.State), []byte(q.Get("state"))) != 1 {
		log.Warn("invalid state parameter - possible CSRF attempt",
			slog.String("pending_provider", pending.Provider))
		h.failLogin(w, r, reasonInvalidState)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.failLogin(w, r, reasonInvalidState)
		return
	}

	fetch := func(ctx context.Context) (*account.RawUser, error) {
		token, err := client.Exchange(ctx, code, pending.Verifier)
		if err != nil {
			return nil, err
		}
		return client.FetchRawUser(ctx, token)
	}

	principal, err := h.logins.Login(r.Context(), name, fetch)
	if err != nil {
		h.failLogin(w, r, services.LoginFailureReason(err))
		return
	}

	token, _, err := h.tokens.GenerateToken(principal)
	if err != nil {
		log.Error("failed to sign session token", slog.String("error", err.Error()))
		h.failLogin(w, r, services.ReasonInternal)
		return
	}
	if err := h.sessionManager.SetToken(r, w, token); err != nil {
		log.Error("failed to save session", slog.String("error", err.Error()))
		h.failLogin(w, r, services.ReasonInternal)
		return
	}

	http.Redirect(w, r, h.frontendURL, http.StatusFound)
}

// CurrentUser returns the authenticated user
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	p, err := auth.GetPrincipalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, p.DTO())
}

// Logout clears the session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionManager.ClearToken(r, w); err != nil {
		h.log.Warn("failed to clear session", slog.String("error", err.Error()))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) failLogin(w http.ResponseWriter, r *http.Request, reason string) {
	target, err := urlutil.BuildLoginErrorURL(h.frontendURL, reason)
	if err != nil {
		h.log.Error("invalid frontend url", slog.String("error", err.Error()))
		http.Error(w, reason, http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
