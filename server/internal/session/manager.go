package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	// SessionName is the name of the session cookie
	SessionName = "ara_session"

	// TokenKey is the session key for storing the signed principal token
	TokenKey = "token"

	stateKey    = "oauth_state"
	verifierKey = "oauth_code_verifier"
	providerKey = "oauth_provider"
)

// ErrNoLoginState is returned when a callback arrives without a pending authorization
var ErrNoLoginState = errors.New("no pending login in session")

// LoginState is what the authorization redirect leaves for the callback
type LoginState struct {
	State    string
	Verifier string
	Provider string
}

// Manager wraps gorilla/sessions for our use case
type Manager struct {
	store *sessions.CookieStore
}

// NewManager creates a new session manager.
// secretKey should be at least 32 bytes.
func NewManager(secretKey []byte, lifetime time.Duration, secure bool) *Manager {
	store := sessions.NewCookieStore(secretKey)

	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(lifetime.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{
		store: store,
	}
}

// get returns the session, replacing one whose cookie no longer decodes
func (m *Manager) get(r *http.Request) *sessions.Session {
	session, err := m.store.Get(r, SessionName)
	if err != nil {
		session, _ = m.store.New(r, SessionName)
	}
	return session
}

// SetToken stores the principal token in the session
func (m *Manager) SetToken(r *http.Request, w http.ResponseWriter, token string) error {
	session := m.get(r)
	session.Values[TokenKey] = token
	return session.Save(r, w)
}

// GetToken retrieves the principal token from the session
func (m *Manager) GetToken(r *http.Request) (string, error) {
	session, err := m.store.Get(r, SessionName)
	if err != nil {
		return "", err
	}

	token, ok := session.Values[TokenKey].(string)
	if !ok || token == "" {
		return "", http.ErrNoCookie
	}

	return token, nil
}

// ClearToken removes the session (logout)
func (m *Manager) ClearToken(r *http.Request, w http.ResponseWriter) error {
	session := m.get(r)
	for k := range session.Values {
		delete(session.Values, k)
	}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// SaveLoginState records a pending authorization, dropping any previous token
func (m *Manager) SaveLoginState(r *http.Request, w http.ResponseWriter, ls LoginState) error {
	session := m.get(r)
	delete(session.Values, TokenKey)
	session.Values[stateKey] = ls.State
	session.Values[verifierKey] = ls.Verifier
	session.Values[providerKey] = ls.Provider
	return session.Save(r, w)
}

// TakeLoginState returns the pending authorization and removes it, so a
// state value is accepted at most once
func (m *Manager) TakeLoginState(r *http.Request, w http.ResponseWriter) (LoginState, error) {
	session := m.get(r)
	state, _ := session.Values[stateKey].(string)
	verifier, _ := session.Values[verifierKey].(string)
	provider, _ := session.Values[providerKey].(string)

	delete(session.Values, stateKey)
	delete(session.Values, verifierKey)
	delete(session.Values, providerKey)
	if err := session.Save(r, w); err != nil {
		return LoginState{}, err
	}

	if state == "" || verifier == "" || provider == "" {
		return LoginState{}, ErrNoLoginState
	}
	return LoginState{State: state, Verifier: verifier, Provider: provider}, nil
}
