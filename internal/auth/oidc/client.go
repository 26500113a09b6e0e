// Package oidc talks to OAuth2 and OIDC identity providers: authorization
// URLs, code exchange, ID token verification and userinfo retrieval.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/devilmonastery/ara/internal/auth/account"
	"github.com/devilmonastery/ara/internal/auth/authority"
	"github.com/devilmonastery/ara/internal/auth/provider"
)

// Well-known endpoints of the built-in providers
const (
	GoogleIssuer        = "https://accounts.google.com"
	GoogleUserInfoURL   = "https://openidconnect.googleapis.com/v1/userinfo"
	GoogleJWKSURL       = "https://www.googleapis.com/oauth2/v3/certs"
	GitHubUserInfoURL   = "https://api.github.com/user"
	GitHubUserEmailsURL = "https://api.github.com/user/emails"
)

const (
	defaultJWKSCacheTTL   = time.Hour
	maxUserInfoBodyLength = 1 << 20
)

// ErrUserInfo wraps failures of the userinfo endpoint
var ErrUserInfo = errors.New("userinfo request failed")

// Options configures provider clients
type Options struct {
	HTTPClient *http.Client
	Discovery  *DiscoveryCache
}

// endpoints are the resolved URLs of one provider
type endpoints struct {
	oauth       oauth2.Endpoint
	userInfoURL string
	emailsURL   string
	jwksURL     string
	issuers     []string
}

// Client is the OAuth2/OIDC client of one configured provider
type Client struct {
	provider   *provider.AuthenticationProvider
	httpClient *http.Client
	discovery  *DiscoveryCache
	log        *slog.Logger

	mu       sync.Mutex
	resolved *endpoints
	verifier *IDTokenVerifier
}

// NewClient creates a client for a provider. Endpoints are resolved on first
// use so that an unreachable issuer does not prevent startup.
func NewClient(p *provider.AuthenticationProvider, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	discovery := opts.Discovery
	if discovery == nil {
		discovery = NewDiscoveryCache(24*time.Hour, httpClient)
	}
	return &Client{
		provider:   p,
		httpClient: httpClient,
		discovery:  discovery,
		log:        slog.Default().With(slog.String("component", "oidc_client"), slog.String("provider", p.Code)),
	}
}

// Provider returns the provider this client talks to
func (c *Client) Provider() *provider.AuthenticationProvider {
	return c.provider
}

func (c *Client) endpoints(ctx context.Context) (*endpoints, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved != nil {
		return c.resolved, nil
	}

	cfg := c.provider.Client
	ep := &endpoints{}

	switch c.provider.Code {
	case account.GoogleProvider:
		ep.oauth = google.Endpoint
		ep.userInfoURL = GoogleUserInfoURL
		ep.jwksURL = GoogleJWKSURL
		ep.issuers = []string{GoogleIssuer, strings.TrimPrefix(GoogleIssuer, "https://")}
	case account.GitHubProvider:
		ep.oauth = github.Endpoint
		ep.userInfoURL = GitHubUserInfoURL
		ep.emailsURL = GitHubUserEmailsURL
	default:
		if cfg.Issuer != "" && (cfg.AuthURL == "" || cfg.TokenURL == "") {
			doc, err := c.discovery.GetDiscovery(ctx, cfg.Issuer)
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", c.provider.Code, err)
			}
			ep.oauth = oauth2.Endpoint{AuthURL: doc.AuthorizationEndpoint, TokenURL: doc.TokenEndpoint}
			ep.userInfoURL = doc.UserinfoEndpoint
			ep.jwksURL = doc.JWKSURI
			ep.issuers = []string{cfg.Issuer, doc.Issuer}
		} else if cfg.Issuer != "" {
			ep.issuers = []string{cfg.Issuer}
		}
	}

	// Explicit configuration wins over well-known and discovered values
	if cfg.AuthURL != "" {
		ep.oauth.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		ep.oauth.TokenURL = cfg.TokenURL
	}
	if cfg.UserInfoURL != "" {
		ep.userInfoURL = cfg.UserInfoURL
	}
	if cfg.JWKSURL != "" {
		ep.jwksURL = cfg.JWKSURL
	}

	if ep.oauth.AuthURL == "" || ep.oauth.TokenURL == "" {
		return nil, fmt.Errorf("provider %s: authorization and token endpoints are not configured", c.provider.Code)
	}
	if ep.jwksURL != "" {
		c.verifier = NewIDTokenVerifier(NewJWKSCache(ep.jwksURL, defaultJWKSCacheTTL, c.httpClient), cfg.ClientID, ep.issuers...)
	}

	c.resolved = ep
	return ep, nil
}

func (c *Client) oauthConfig(ep *endpoints) *oauth2.Config {
	cfg := c.provider.Client
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint:     ep.oauth,
	}
}

// AuthCodeURL builds the provider authorization URL with state and a PKCE
// S256 challenge derived from verifier
func (c *Client) AuthCodeURL(ctx context.Context, state, verifier string) (string, error) {
	ep, err := c.endpoints(ctx)
	if err != nil {
		return "", err
	}
	return c.oauthConfig(ep).AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// Exchange trades an authorization code for tokens
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ep, err := c.endpoints(ctx)
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauthConfig(ep).Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("provider %s: code exchange failed: %w", c.provider.Code, err)
	}
	return token, nil
}

// FetchRawUser collects the user attributes and authorities for a token.
// A present ID token is verified and its claims take precedence; userinfo
// fills in claims the ID token lacks.
func (c *Client) FetchRawUser(ctx context.Context, token *oauth2.Token) (*account.RawUser, error) {
	ep, err := c.endpoints(ctx)
	if err != nil {
		return nil, err
	}

	raw := &account.RawUser{Attributes: make(map[string]any)}

	if idToken, _ := token.Extra("id_token").(string); idToken != "" {
		if c.verifier == nil {
			return nil, fmt.Errorf("provider %s: id token received but no JWKS endpoint is known", c.provider.Code)
		}
		claims, err := c.verifier.Verify(ctx, idToken)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", c.provider.Code, err)
		}
		for k, v := range claims {
			raw.Attributes[k] = v
		}
		raw.IDToken = idToken
		raw.Issuer, _ = claims["iss"].(string)
	}

	if ep.userInfoURL != "" {
		info, err := c.getJSON(ctx, token, ep.userInfoURL)
		switch {
		case err != nil && raw.IDToken == "":
			return nil, err
		case err != nil:
			c.log.Warn("userinfo unavailable, using id token claims only", slog.String("error", err.Error()))
		default:
			infoMap, _ := info.(map[string]any)
			for k, v := range infoMap {
				if _, ok := raw.Attributes[k]; !ok {
					raw.Attributes[k] = v
				}
			}
		}
	} else if raw.IDToken == "" {
		return nil, fmt.Errorf("provider %s: neither id token nor userinfo endpoint available", c.provider.Code)
	}

	if ep.emailsURL != "" && isEmpty(raw.Attributes["email"]) && hasScope(c.provider.Client.Scopes, "user:email") {
		if email := c.primaryEmail(ctx, token, ep.emailsURL); email != "" {
			raw.Attributes["email"] = email
		}
	}

	raw.Authorities = c.authorities(raw.Attributes, token)
	return raw, nil
}

// authorities collects the configured authority claim values and the
// granted scopes as SCOPE_ authorities
func (c *Client) authorities(attrs map[string]any, token *oauth2.Token) []string {
	var out []string
	if claim := c.provider.Authorities.Claim; claim != "" {
		switch v := attrs[claim].(type) {
		case string:
			out = append(out, strings.Fields(strings.ReplaceAll(v, ",", " "))...)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return append(out, authority.ScopeAuthorities(grantedScopes(token, c.provider.Client.Scopes))...)
}

// grantedScopes reads the scope parameter of the token response; providers
// that omit it granted what was requested
func grantedScopes(token *oauth2.Token, requested []string) []string {
	s, _ := token.Extra("scope").(string)
	if s == "" {
		return requested
	}
	return strings.Fields(strings.ReplaceAll(s, ",", " "))
}

func (c *Client) getJSON(ctx context.Context, token *oauth2.Token, url string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	req.Header.Set("Accept", "application/json")

	// The token client sets the Authorization header and keeps our transport
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), oauth2.StaticTokenSource(token))
	client.Timeout = c.httpClient.Timeout

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned status %d: %s", ErrUserInfo, url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out any
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBodyLength))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUserInfo, err)
	}
	return out, nil
}

// primaryEmail returns the primary verified address from GitHub's email
// list, falling back to the first verified one
func (c *Client) primaryEmail(ctx context.Context, token *oauth2.Token, url string) string {
	body, err := c.getJSON(ctx, token, url)
	if err != nil {
		c.log.Debug("email list unavailable", slog.String("error", err.Error()))
		return ""
	}
	list, _ := body.([]any)

	var firstVerified string
	for _, item := range list {
		e, _ := item.(map[string]any)
		addr, _ := e["email"].(string)
		verified, _ := e["verified"].(bool)
		primary, _ := e["primary"].(bool)
		if addr == "" || !verified {
			continue
		}
		if primary {
			return addr
		}
		if firstVerified == "" {
			firstVerified = addr
		}
	}
	return firstVerified
}

func isEmpty(v any) bool {
	s, ok := v.(string)
	return v == nil || (ok && strings.TrimSpace(s) == "")
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
