package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/devilmonastery/ara/internal/auth"
	"github.com/devilmonastery/ara/internal/auth/account"
	"github.com/devilmonastery/ara/internal/auth/authority"
	"github.com/devilmonastery/ara/internal/auth/provider"
	"github.com/devilmonastery/ara/internal/config"
	"github.com/devilmonastery/ara/internal/domain/services"
	"github.com/devilmonastery/ara/internal/infrastructure/database/memory"
	"github.com/devilmonastery/ara/server/internal/middleware"
	"github.com/devilmonastery/ara/server/internal/session"
)

const frontend = "http://localhost:4200"

type fakeClient struct {
	attrs        map[string]any
	authorities  []string
	exchangeErr  error
	gotVerifier  string
	gotChallenge string
}

func (c *fakeClient) AuthCodeURL(_ context.Context, state, verifier string) (string, error) {
	c.gotChallenge = oauth2.S256ChallengeFromVerifier(verifier)
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state), nil
}

func (c *fakeClient) Exchange(_ context.Context, code, verifier string) (*oauth2.Token, error) {
	if c.exchangeErr != nil {
		return nil, c.exchangeErr
	}
	c.gotVerifier = verifier
	return &oauth2.Token{AccessToken: "at-" + code}, nil
}

func (c *fakeClient) FetchRawUser(context.Context, *oauth2.Token) (*account.RawUser, error) {
	return &account.RawUser{Attributes: c.attrs, Authorities: c.authorities}, nil
}

type gateway struct {
	router *mux.Router
	github *fakeClient
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	reg, err := provider.NewRegistry([]config.ProviderConfig{
		{Code: "github", DisplayName: "GitHub", Type: "oauth2", Authorities: config.AuthoritiesConfig{
			Roles: map[string]string{"org:ara-admins": "ADMIN"},
		}},
		{Code: "google", DisplayName: "Google", Type: "oidc", Issuer: "https://accounts.google.com"},
	})
	require.NoError(t, err)
	mapper, err := authority.NewMapper(reg)
	require.NoError(t, err)

	store := memory.NewStore()
	sessions := services.NewSessionService(store, services.SessionConfig{WriteTimeout: time.Second})
	logins := services.NewLoginService(account.NewSelector(reg), mapper, sessions)

	gh := &fakeClient{attrs: map[string]any{"login": "annl", "name": "Ann Lee"}}
	tokens := auth.NewJWTManager("test-secret", time.Hour)
	sm := session.NewManager([]byte("0123456789abcdef0123456789abcdef"), time.Hour, false)

	h := New(Options{
		Registry:    reg,
		Clients:     map[string]OAuthClient{"github": gh},
		Logins:      logins,
		Users:       services.NewUserService(store, store.Repositories()),
		Tokens:      tokens,
		Sessions:    sm,
		Health:      store,
		FrontendURL: frontend,
	})
	return &gateway{router: h.Router(middleware.NewAuthMiddleware(sm, tokens)), github: gh}
}

func (g *gateway) do(method, target string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)
	return rec
}

// cookiesOf returns the last cookie set under each name, as a browser keeps it
func cookiesOf(rec *httptest.ResponseRecorder) []*http.Cookie {
	byName := map[string]*http.Cookie{}
	var order []string
	for _, c := range rec.Result().Cookies() {
		if _, ok := byName[c.Name]; !ok {
			order = append(order, c.Name)
		}
		byName[c.Name] = c
	}
	out := make([]*http.Cookie, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

// authorize starts a login and returns the state and session cookies
func (g *gateway) authorize(t *testing.T, providerName string) (string, []*http.Cookie) {
	t.Helper()
	rec := g.do(http.MethodGet, "/oauth2/authorization/"+providerName, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	return state, cookiesOf(rec)
}

func loginError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, frontend+"/login?"), loc)
	u, err := url.Parse(loc)
	require.NoError(t, err)
	return u.Query().Get("error")
}

func TestLoginFlow(t *testing.T) {
	g := newGateway(t)

	state, cookies := g.authorize(t, "GitHub")
	assert.NotEmpty(t, g.github.gotChallenge)

	rec := g.do(http.MethodGet, "/login/oauth2/code/github?code=abc&state="+url.QueryEscape(state), cookies)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, frontend, rec.Header().Get("Location"))
	assert.Equal(t, g.github.gotChallenge, oauth2.S256ChallengeFromVerifier(g.github.gotVerifier))
	cookies = cookiesOf(rec)

	rec = g.do(http.MethodGet, "/api/user/current", cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var dto auth.UserDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, "annl", dto.MemberName)
	assert.Equal(t, "Ann Lee", dto.Name)
	assert.Equal(t, "github", dto.Issuer)
	assert.Empty(t, dto.Roles)

	rec = g.do(http.MethodPost, "/api/auth/logout", cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = g.do(http.MethodGet, "/api/user/current", cookiesOf(rec))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStateIsSingleUse(t *testing.T) {
	g := newGateway(t)
	state, cookies := g.authorize(t, "github")
	target := "/login/oauth2/code/github?code=abc&state=" + url.QueryEscape(state)

	rec := g.do(http.MethodGet, target, cookies)
	require.Equal(t, frontend, rec.Header().Get("Location"))

	// the session issued by the callback no longer holds the state
	assert.Equal(t, "invalid_state", loginError(t, g.do(http.MethodGet, target, cookiesOf(rec))))
}

func TestCallbackFailures(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		g := newGateway(t)
		assert.Equal(t, "unknown_provider", loginError(t, g.do(http.MethodGet, "/login/oauth2/code/gitlab?code=abc&state=x", nil)))
	})

	t.Run("no pending login", func(t *testing.T) {
		g := newGateway(t)
		assert.Equal(t, "invalid_state", loginError(t, g.do(http.MethodGet, "/login/oauth2/code/github?code=abc&state=x", nil)))
	})

	t.Run("state mismatch", func(t *testing.T) {
		g := newGateway(t)
		_, cookies := g.authorize(t, "github")
		assert.Equal(t, "invalid_state", loginError(t, g.do(http.MethodGet, "/login/oauth2/code/github?code=abc&state=forged", cookies)))
	})

	t.Run("access denied", func(t *testing.T) {
		g := newGateway(t)
		state, cookies := g.authorize(t, "github")
		rec := g.do(http.MethodGet, "/login/oauth2/code/github?error=access_denied&state="+state, cookies)
		assert.Equal(t, "access_denied", loginError(t, rec))
	})

	t.Run("missing login claim", func(t *testing.T) {
		g := newGateway(t)
		g.github.attrs = map[string]any{"id": 1, "name": "Ann Lee"}
		state, cookies := g.authorize(t, "github")
		rec := g.do(http.MethodGet, "/login/oauth2/code/github?code=abc&state="+state, cookies)
		assert.Equal(t, "mapping", loginError(t, rec))

		rec = g.do(http.MethodGet, "/api/user/current", cookiesOf(rec))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("exchange failure", func(t *testing.T) {
		g := newGateway(t)
		g.github.exchangeErr = errors.New("invalid_grant")
		state, cookies := g.authorize(t, "github")
		rec := g.do(http.MethodGet, "/login/oauth2/code/github?code=abc&state="+state, cookies)
		assert.Equal(t, "internal", loginError(t, rec))
	})
}

func TestAuthorizeUnknownProvider(t *testing.T) {
	g := newGateway(t)

	// google is configured but has no client in this gateway
	for _, name := range []string{"gitlab", "google"} {
		rec := g.do(http.MethodGet, "/oauth2/authorization/"+name, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, name)
		assert.JSONEq(t, `{"error":"unknown_provider"}`, rec.Body.String())
	}
}

func TestProviders(t *testing.T) {
	g := newGateway(t)
	rec := g.do(http.MethodGet, "/api/auth/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"code":"github","displayName":"GitHub","type":"oauth2"},
		{"code":"google","displayName":"Google","type":"oidc"}
	]`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	g := newGateway(t)

	rec := g.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = g.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// login runs a full GitHub login and returns the session cookies
func (g *gateway) login(t *testing.T) []*http.Cookie {
	t.Helper()
	state, cookies := g.authorize(t, "github")
	rec := g.do(http.MethodGet, "/login/oauth2/code/github?code=abc&state="+url.QueryEscape(state), cookies)
	require.Equal(t, frontend, rec.Header().Get("Location"))
	return cookiesOf(rec)
}

func TestAdminEndpoints(t *testing.T) {
	g := newGateway(t)

	rec := g.do(http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	member := g.login(t)
	rec = g.do(http.MethodGet, "/api/admin/users", member)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	g.github.authorities = []string{"org:ara-admins"}
	admin := g.login(t)

	rec = g.do(http.MethodGet, "/api/admin/users?provider=GitHub", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "annl", users[0]["login"])

	rec = g.do(http.MethodGet, "/api/admin/users/github/annl", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var details struct {
		User  map[string]any `json:"user"`
		Roles []struct {
			Role   string `json:"role"`
			Source string `json:"source"`
		} `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	assert.Equal(t, "annl", details.User["login"])
	require.Len(t, details.Roles, 1)
	assert.Equal(t, "ADMIN", details.Roles[0].Role)
	assert.Equal(t, "login", details.Roles[0].Source)

	rec = g.do(http.MethodGet, "/api/admin/users/github/nobody", admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = g.do(http.MethodGet, "/api/admin/users?limit=0", admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
