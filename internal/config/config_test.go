package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "environment: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "ara", cfg.Database.Postgres.Database)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 10*time.Second, cfg.Auth.HTTPTimeout)
	assert.Equal(t, 5*time.Second, cfg.Auth.WriteTimeout)
	assert.Equal(t, "OBSERVER", cfg.Auth.DefaultScope)
}

func TestLoadProviders(t *testing.T) {
	t.Setenv("ARA_TEST_GITHUB_SECRET", "s3cret")

	path := writeConfig(t, `
http:
  public_url: https://ara.example.com/
auth:
  http_timeout: 3s
  providers:
    - code: GitHub
      display_name: GitHub
      client_id: gh-client
      client_secret: ${ARA_TEST_GITHUB_SECRET}
    - code: keycloak
      issuer: https://sso.example.com/realms/ara
      custom_attributes:
        login: preferred_username
      authorities:
        claim: groups
        roles:
          ara-admins: ADMIN
        groups:
          qa-team: qa
        default_roles: [AUDITING]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Auth.Providers, 2)

	gh := cfg.Auth.Providers[0]
	assert.Equal(t, "github", gh.Code)
	assert.Equal(t, ProviderTypeOAuth2, gh.Type)
	assert.Equal(t, "s3cret", gh.ClientSecret)
	assert.Equal(t, "https://ara.example.com/login/oauth2/code/github", gh.RedirectURL)

	kc := cfg.Auth.Providers[1]
	assert.Equal(t, ProviderTypeOIDC, kc.Type)
	assert.Equal(t, "keycloak", kc.DisplayName)
	assert.Equal(t, "preferred_username", kc.CustomAttributes.Login)
	assert.Equal(t, "ADMIN", kc.Authorities.Roles["ara-admins"])
	assert.Equal(t, []string{"AUDITING"}, kc.Authorities.DefaultRoles)
	assert.Equal(t, 3*time.Second, cfg.Auth.HTTPTimeout)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "duplicate codes ignore case",
			body:    "auth:\n  providers:\n    - code: google\n    - code: Google\n",
			wantErr: "duplicate code",
		},
		{
			name:    "missing code",
			body:    "auth:\n  providers:\n    - display_name: Nameless\n",
			wantErr: "code is required",
		},
		{
			name:    "unknown type",
			body:    "auth:\n  providers:\n    - code: corp\n      type: saml\n",
			wantErr: "unknown type",
		},
		{
			name:    "unknown driver",
			body:    "database:\n  driver: mysql\n",
			wantErr: "database.driver",
		},
		{
			name:    "bad port",
			body:    "http:\n  port: 70000\n",
			wantErr: "http.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMemoryDriverSkipsPostgres(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  driver: Memory\n  postgres:\n    host: \"\"\n"))
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
}

func TestConnectionString(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "ara", Password: "pw", Database: "ara", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=ara password=pw dbname=ara sslmode=require", p.ConnectionString())
}
