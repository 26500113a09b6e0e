// Package provider holds the authentication providers enabled by configuration.
package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/devilmonastery/ara/internal/config"
)

// ErrUnknownProvider is returned when a provider code is not configured
var ErrUnknownProvider = errors.New("unknown authentication provider")

// Type is how a provider speaks to us
type Type string

const (
	TypeOIDC   Type = config.ProviderTypeOIDC
	TypeOAuth2 Type = config.ProviderTypeOAuth2
	TypeCustom Type = config.ProviderTypeCustom
)

// AttributeMapping names the source claim for each normalized user field.
// Empty entries mean "use the default claim".
type AttributeMapping struct {
	Login     string
	FirstName string
	LastName  string
	Email     string
	Picture   string
}

// AuthenticationProvider is one configured login provider. It is immutable
// once the registry is built.
type AuthenticationProvider struct {
	Code             string
	DisplayName      string
	Type             Type
	CustomAttributes AttributeMapping
	Authorities      config.AuthoritiesConfig

	// OAuth client settings
	Client config.ProviderConfig
}

// Registry holds the configured providers keyed by lower-case code
type Registry struct {
	providers map[string]*AuthenticationProvider
	order     []string
}

// NewRegistry builds a registry from provider configuration
func NewRegistry(cfgs []config.ProviderConfig) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]*AuthenticationProvider, len(cfgs)),
	}
	for i, c := range cfgs {
		code := canonical(c.Code)
		if code == "" {
			return nil, fmt.Errorf("provider %d: code is required", i)
		}
		if _, dup := r.providers[code]; dup {
			return nil, fmt.Errorf("provider %s: duplicate code", code)
		}
		typ := Type(strings.ToLower(c.Type))
		switch typ {
		case TypeOIDC, TypeOAuth2, TypeCustom:
		default:
			return nil, fmt.Errorf("provider %s: unknown type %q", code, c.Type)
		}

		display := c.DisplayName
		if display == "" {
			display = code
		}
		client := c
		client.Code = code
		client.Scopes = append([]string(nil), c.Scopes...)

		r.providers[code] = &AuthenticationProvider{
			Code:        code,
			DisplayName: display,
			Type:        typ,
			CustomAttributes: AttributeMapping{
				Login:     c.CustomAttributes.Login,
				FirstName: c.CustomAttributes.FirstName,
				LastName:  c.CustomAttributes.LastName,
				Email:     c.CustomAttributes.Email,
				Picture:   c.CustomAttributes.Picture,
			},
			Authorities: copyAuthorities(c.Authorities),
			Client:      client,
		}
		r.order = append(r.order, code)
	}
	return r, nil
}

// Get retrieves a provider by code, case-insensitively
func (r *Registry) Get(code string) (*AuthenticationProvider, error) {
	p, ok := r.Lookup(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, code)
	}
	return p, nil
}

// Lookup retrieves a provider by code, case-insensitively
func (r *Registry) Lookup(code string) (*AuthenticationProvider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[canonical(code)]
	return p, ok
}

// List returns all providers in configuration order
func (r *Registry) List() []*AuthenticationProvider {
	if r == nil {
		return nil
	}
	out := make([]*AuthenticationProvider, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.providers[code])
	}
	return out
}

// Canonical returns the registry form of a provider code
func Canonical(code string) string {
	return canonical(code)
}

func canonical(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func copyAuthorities(a config.AuthoritiesConfig) config.AuthoritiesConfig {
	out := config.AuthoritiesConfig{
		Claim:        a.Claim,
		DefaultRoles: append([]string(nil), a.DefaultRoles...),
	}
	if a.Roles != nil {
		out.Roles = make(map[string]string, len(a.Roles))
		for k, v := range a.Roles {
			out.Roles[k] = v
		}
	}
	if a.Groups != nil {
		out.Groups = make(map[string]string, len(a.Groups))
		for k, v := range a.Groups {
			out.Groups[k] = v
		}
	}
	return out
}
