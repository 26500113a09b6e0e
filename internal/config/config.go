package config

import (
	"fmt"
	"time"
)

// Config represents the application configuration
type Config struct {
	Database    DatabaseConfig `yaml:"database"`
	HTTP        HTTPConfig     `yaml:"http"`
	Session     SessionConfig  `yaml:"session"`
	Auth        AuthConfig     `yaml:"auth"`
	Logging     LoggingConfig  `yaml:"logging"`
	Environment string         `yaml:"environment" default:"local"` // local, dev, prod
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" default:"postgres"` // postgres, memory
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	Database string `yaml:"database" default:"ara"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode" default:"disable"` // disable, require, verify-ca, verify-full
}

// HTTPConfig holds the gateway listener configuration
type HTTPConfig struct {
	Host         string `yaml:"host" default:"localhost"`
	Port         int    `yaml:"port" default:"8080"`
	FrontendURL  string `yaml:"frontend_url" default:"http://localhost:4200"` // Where successful and failed logins land
	PublicURL    string `yaml:"public_url"`                                 // Base URL used to build default redirect URLs
	SecureCookie bool   `yaml:"secure_cookie"`
}

// SessionConfig holds cookie session and principal token settings
type SessionConfig struct {
	Secret   string        `yaml:"secret"`                  // Signs both the cookie and the principal token
	Lifetime time.Duration `yaml:"lifetime" default:"12h"` // Session and token lifetime
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Providers      []ProviderConfig `yaml:"providers"`
	DefaultProject string           `yaml:"default_project"`                   // Project granted on first login, empty for none
	DefaultScope   string           `yaml:"default_scope" default:"OBSERVER"` // Scope granted on the default project
	HTTPTimeout    time.Duration    `yaml:"http_timeout" default:"10s"`       // Timeout for calls to identity providers
	WriteTimeout   time.Duration    `yaml:"write_timeout" default:"5s"`       // Upper bound for one session upsert
}

// ProviderConfig holds one OAuth2/OIDC provider entry
type ProviderConfig struct {
	Code             string                 `yaml:"code"`                        // "google", "github", "keycloak", ...
	DisplayName      string                 `yaml:"display_name"`                // Shown on the login page
	Type             string                 `yaml:"type"`                        // oidc, oauth2, custom
	ClientID         string                 `yaml:"client_id"`                   // OAuth client ID (required)
	ClientSecret     string                 `yaml:"client_secret,omitempty"`     // OAuth client secret
	Issuer           string                 `yaml:"issuer,omitempty"`            // OIDC issuer URL (for discovery)
	AuthURL          string                 `yaml:"auth_url,omitempty"`          // Overrides discovery
	TokenURL         string                 `yaml:"token_url,omitempty"`         // Overrides discovery
	UserInfoURL      string                 `yaml:"userinfo_url,omitempty"`      // Overrides discovery
	JWKSURL          string                 `yaml:"jwks_url,omitempty"`          // Overrides discovery
	RedirectURL      string                 `yaml:"redirect_url,omitempty"`      // Defaults to <public_url>/login/oauth2/code/<code>
	Scopes           []string               `yaml:"scopes,omitempty"`            // OAuth scopes (e.g., ["openid", "email", "profile"])
	CustomAttributes CustomAttributesConfig `yaml:"custom_attributes,omitempty"` // Generic providers only
	Authorities      AuthoritiesConfig      `yaml:"authorities,omitempty"`
}

// CustomAttributesConfig maps normalized user fields to source claim names
type CustomAttributesConfig struct {
	Login     string `yaml:"login,omitempty"`
	FirstName string `yaml:"first_name,omitempty"`
	LastName  string `yaml:"last_name,omitempty"`
	Email     string `yaml:"email,omitempty"`
	Picture   string `yaml:"picture,omitempty"`
}

// AuthoritiesConfig holds the rules translating provider authorities into
// internal roles and groups
type AuthoritiesConfig struct {
	Claim        string            `yaml:"claim,omitempty"`         // Claim holding provider roles/groups, e.g. "groups"
	Roles        map[string]string `yaml:"roles,omitempty"`         // provider authority -> internal role
	Groups       map[string]string `yaml:"groups,omitempty"`        // provider authority -> internal group name
	DefaultRoles []string          `yaml:"default_roles,omitempty"` // Granted to every login through this provider
}

// ConnectionString returns the PostgreSQL connection string
func (p *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// Address returns host:port for the HTTP listener
func (h *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// LoggingConfig holds log settings that command-line flags may override
type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`   // debug, info, warn, error
	File   string `yaml:"file"`                   // Empty logs to stderr
	Format string `yaml:"format" default:"text"` // text, json
}
