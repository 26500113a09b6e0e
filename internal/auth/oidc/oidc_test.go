package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/devilmonastery/ara/internal/auth/provider"
	"github.com/devilmonastery/ara/internal/config"
)

const testClientID = "ara-client"

// fakeIdP is an OIDC issuer backed by httptest
type fakeIdP struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey
	kid    string

	discoveryHits atomic.Int32
	jwksHits      atomic.Int32

	idTokenClaims jwt.MapClaims
	userinfo      map[string]any
	userinfoCode  atomic.Int32
	tokenScope    string
	lastVerifier  atomic.Value
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIdP{t: t, key: key, kid: "key-1"}
	f.userinfoCode.Store(http.StatusOK)
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		f.discoveryHits.Add(1)
		writeJSON(w, map[string]any{
			"issuer":                 f.server.URL,
			"authorization_endpoint": f.server.URL + "/authorize",
			"token_endpoint":         f.server.URL + "/token",
			"userinfo_endpoint":      f.server.URL + "/userinfo",
			"jwks_uri":               f.server.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		f.jwksHits.Add(1)
		writeJSON(w, map[string]any{"keys": []any{f.jwk()}})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.lastVerifier.Store(r.PostForm.Get("code_verifier"))
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]any{"error": "invalid_grant"})
			return
		}
		resp := map[string]any{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		if f.idTokenClaims != nil {
			resp["id_token"] = f.sign(f.idTokenClaims)
		}
		if f.tokenScope != "" {
			resp["scope"] = f.tokenScope
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if code := int(f.userinfoCode.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		writeJSON(w, f.userinfo)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeIdP) jwk() map[string]any {
	return map[string]any{
		"kty": "RSA",
		"kid": f.kid,
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(f.key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(f.key.E)).Bytes()),
	}
}

func (f *fakeIdP) sign(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = f.kid
	s, err := token.SignedString(f.key)
	require.NoError(f.t, err)
	return s
}

func (f *fakeIdP) claims(extra map[string]any) jwt.MapClaims {
	c := jwt.MapClaims{
		"iss": f.server.URL,
		"aud": testClientID,
		"sub": "f3b1c0de",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	for k, v := range extra {
		c[k] = v
	}
	return c
}

func (f *fakeIdP) provider(t *testing.T, mutate func(*config.ProviderConfig)) *provider.AuthenticationProvider {
	t.Helper()
	cfg := config.ProviderConfig{
		Code:        "keycloak",
		Type:        "oidc",
		ClientID:    testClientID,
		Issuer:      f.server.URL,
		RedirectURL: "https://ara.example.com/login/oauth2/code/keycloak",
		Scopes:      []string{"openid", "email", "profile"},
		Authorities: config.AuthoritiesConfig{Claim: "groups"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	reg, err := provider.NewRegistry([]config.ProviderConfig{cfg})
	require.NoError(t, err)
	p, err := reg.Get(cfg.Code)
	require.NoError(t, err)
	return p
}

func TestDiscoveryCache(t *testing.T) {
	f := newFakeIdP(t)
	cache := NewDiscoveryCache(time.Hour, f.server.Client())

	doc, err := cache.GetDiscovery(context.Background(), f.server.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, f.server.URL+"/token", doc.TokenEndpoint)

	_, err = cache.GetDiscovery(context.Background(), f.server.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.discoveryHits.Load())
}

func TestDiscoveryCacheErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"issuer": "x"})
	}))
	defer srv.Close()

	_, err := NewDiscoveryCache(time.Hour, nil).GetDiscovery(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "incomplete discovery document")
}

func TestJWKSCacheRefetchesUnknownKid(t *testing.T) {
	f := newFakeIdP(t)
	cache := NewJWKSCache(f.server.URL+"/jwks", time.Hour, nil)

	key, err := cache.GetKey(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, f.key.PublicKey.N, key.N)
	assert.Equal(t, f.key.PublicKey.E, key.E)

	_, err = cache.GetKey(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.jwksHits.Load())

	_, err = cache.GetKey(context.Background(), "rotated")
	assert.Error(t, err)
	assert.Equal(t, int32(2), f.jwksHits.Load())
}

func TestIDTokenVerifier(t *testing.T) {
	f := newFakeIdP(t)
	v := NewIDTokenVerifier(NewJWKSCache(f.server.URL+"/jwks", time.Hour, nil), testClientID, f.server.URL)

	claims, err := v.Verify(context.Background(), f.sign(f.claims(nil)))
	require.NoError(t, err)
	assert.Equal(t, "f3b1c0de", claims["sub"])

	tests := []struct {
		name  string
		token string
	}{
		{"wrong audience", f.sign(f.claims(map[string]any{"aud": "someone-else"}))},
		{"audience list without us", f.sign(f.claims(map[string]any{"aud": []string{"a", "b"}}))},
		{"wrong issuer", f.sign(f.claims(map[string]any{"iss": "https://evil.example.com"}))},
		{"expired", f.sign(f.claims(map[string]any{"exp": time.Now().Add(-time.Hour).Unix()}))},
		{"hmac", func() string {
			s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, f.claims(nil)).SignedString([]byte("k"))
			return s
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			assert.True(t, errors.Is(err, ErrInvalidIDToken), "got %v", err)
		})
	}

	t.Run("audience list with us", func(t *testing.T) {
		_, err := v.Verify(context.Background(), f.sign(f.claims(map[string]any{"aud": []string{"a", testClientID}})))
		assert.NoError(t, err)
	})
}

func TestClientOIDCFlow(t *testing.T) {
	f := newFakeIdP(t)
	f.idTokenClaims = f.claims(map[string]any{
		"preferred_username": "ann.lee",
		"email":              "ann@corp.example",
		"groups":             []string{"qa-team", "ara-admins"},
	})
	f.userinfo = map[string]any{
		"sub":     "f3b1c0de",
		"email":   "other@corp.example",
		"picture": "https://corp.example/ann.png",
	}
	f.tokenScope = "openid email"

	c := NewClient(f.provider(t, nil), Options{HTTPClient: f.server.Client()})
	ctx := context.Background()

	verifier := oauth2.GenerateVerifier()
	authURL, err := c.AuthCodeURL(ctx, "state-xyz", verifier)
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, f.server.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "state-xyz", u.Query().Get("state"))
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(verifier), u.Query().Get("code_challenge"))
	assert.Equal(t, testClientID, u.Query().Get("client_id"))

	token, err := c.Exchange(ctx, "good-code", verifier)
	require.NoError(t, err)
	assert.Equal(t, verifier, f.lastVerifier.Load())

	raw, err := c.FetchRawUser(ctx, token)
	require.NoError(t, err)
	assert.NotEmpty(t, raw.IDToken)
	assert.Equal(t, f.server.URL, raw.Issuer)
	assert.Equal(t, "ann.lee", raw.Attributes["preferred_username"])
	assert.Equal(t, "ann@corp.example", raw.Attributes["email"], "id token claims win")
	assert.Equal(t, "https://corp.example/ann.png", raw.Attributes["picture"], "userinfo fills gaps")
	assert.Equal(t, []string{"qa-team", "ara-admins", "SCOPE_openid", "SCOPE_email"}, raw.Authorities)
	assert.Equal(t, int32(1), f.discoveryHits.Load())
}

func TestClientExchangeFailure(t *testing.T) {
	f := newFakeIdP(t)
	c := NewClient(f.provider(t, nil), Options{HTTPClient: f.server.Client()})

	_, err := c.Exchange(context.Background(), "bad-code", oauth2.GenerateVerifier())
	assert.ErrorContains(t, err, "code exchange failed")
}

func TestClientPlainOAuth2(t *testing.T) {
	f := newFakeIdP(t)
	f.userinfo = map[string]any{"id": 583231, "login": "annl", "name": "Ann Lee"}

	p := f.provider(t, func(cfg *config.ProviderConfig) {
		cfg.Code = "forge"
		cfg.Type = "oauth2"
		cfg.Issuer = ""
		cfg.AuthURL = f.server.URL + "/authorize"
		cfg.TokenURL = f.server.URL + "/token"
		cfg.UserInfoURL = f.server.URL + "/userinfo"
		cfg.Scopes = []string{"read:user"}
		cfg.Authorities = config.AuthoritiesConfig{}
	})
	c := NewClient(p, Options{HTTPClient: f.server.Client()})
	ctx := context.Background()

	token, err := c.Exchange(ctx, "good-code", oauth2.GenerateVerifier())
	require.NoError(t, err)

	raw, err := c.FetchRawUser(ctx, token)
	require.NoError(t, err)
	assert.Empty(t, raw.IDToken)
	assert.Equal(t, "annl", raw.Attributes["login"])
	assert.Equal(t, json.Number("583231"), raw.Attributes["id"])
	assert.Equal(t, []string{"SCOPE_read:user"}, raw.Authorities)
	assert.Equal(t, int32(0), f.discoveryHits.Load())

	f.userinfoCode.Store(http.StatusInternalServerError)
	_, err = c.FetchRawUser(ctx, token)
	assert.True(t, errors.Is(err, ErrUserInfo))
}

func TestClientMissingEndpoints(t *testing.T) {
	reg, err := provider.NewRegistry([]config.ProviderConfig{{Code: "corp", Type: "oauth2", ClientID: "x"}})
	require.NoError(t, err)
	p, _ := reg.Get("corp")

	_, err = NewClient(p, Options{}).AuthCodeURL(context.Background(), "s", "v")
	assert.ErrorContains(t, err, "endpoints are not configured")
}

func TestGrantedScopes(t *testing.T) {
	requested := []string{"openid"}
	tok := &oauth2.Token{AccessToken: "a"}
	assert.Equal(t, requested, grantedScopes(tok, requested))

	tok = tok.WithExtra(map[string]any{"scope": "read:user,user:email"})
	assert.Equal(t, []string{"read:user", "user:email"}, grantedScopes(tok, requested))
}
