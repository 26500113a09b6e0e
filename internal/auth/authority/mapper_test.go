package authority

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devilmonastery/ara/internal/auth/provider"
	"github.com/devilmonastery/ara/internal/config"
	"github.com/devilmonastery/ara/internal/domain/entities"
)

func newTestMapper(t *testing.T) *Mapper {
	t.Helper()
	reg, err := provider.NewRegistry([]config.ProviderConfig{
		{
			Code: "keycloak",
			Type: "oidc",
			Authorities: config.AuthoritiesConfig{
				Claim: "groups",
				Roles: map[string]string{
					"ara-admins":   "admin",
					"ara-auditors": "AUDITING",
					"SCOPE_ara":    "AUDITING",
				},
				Groups: map[string]string{
					"qa-team":  "qa",
					"dev-team": "developers",
				},
			},
		},
		{
			Code: "github",
			Type: "oauth2",
			Authorities: config.AuthoritiesConfig{
				DefaultRoles: []string{"AUDITING"},
			},
		},
	})
	require.NoError(t, err)
	m, err := NewMapper(reg)
	require.NoError(t, err)
	return m
}

func TestMap(t *testing.T) {
	m := newTestMapper(t)

	tests := []struct {
		name     string
		provider string
		granted  []string
		want     Set
	}{
		{
			name:     "roles and groups",
			provider: "keycloak",
			granted:  []string{"dev-team", "ara-auditors", "qa-team", "ara-admins", "unrelated"},
			want: Set{
				Roles:  []entities.Role{entities.RoleAdmin, entities.RoleAuditing},
				Groups: []string{"developers", "qa"},
			},
		},
		{
			name:     "duplicates collapse",
			provider: "KEYCLOAK",
			granted:  []string{"ara-auditors", "SCOPE_ara", "qa-team", "qa-team"},
			want: Set{
				Roles:  []entities.Role{entities.RoleAuditing},
				Groups: []string{"qa"},
			},
		},
		{
			name:     "default roles",
			provider: "github",
			granted:  []string{"SCOPE_read:user"},
			want:     Set{Roles: []entities.Role{entities.RoleAuditing}, Groups: []string{}},
		},
		{
			name:     "unconfigured provider",
			provider: "okta",
			granted:  []string{"ara-admins"},
			want:     Set{Roles: []entities.Role{}, Groups: []string{}},
		},
		{
			name:     "nothing granted",
			provider: "keycloak",
			want:     Set{Roles: []entities.Role{}, Groups: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Map(tt.provider, tt.granted))
		})
	}
}

func TestMapIsDeterministic(t *testing.T) {
	m := newTestMapper(t)
	granted := []string{"qa-team", "ara-admins", "dev-team", "ara-auditors"}
	first := m.Map("keycloak", granted)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, m.Map("keycloak", granted))
	}
}

func TestNewMapperRejectsUnknownRoles(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AuthoritiesConfig
	}{
		{"role", config.AuthoritiesConfig{Roles: map[string]string{"x": "ROOT"}}},
		{"default role", config.AuthoritiesConfig{DefaultRoles: []string{"OWNER"}}},
		{"empty group", config.AuthoritiesConfig{Groups: map[string]string{"x": " "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := provider.NewRegistry([]config.ProviderConfig{{Code: "corp", Type: "oidc", Authorities: tt.cfg}})
			require.NoError(t, err)
			_, err = NewMapper(reg)
			assert.Error(t, err)
		})
	}
}

func TestScopeAuthorities(t *testing.T) {
	assert.Equal(t, []string{"SCOPE_openid", "SCOPE_email"}, ScopeAuthorities([]string{"openid", " ", "email"}))
}
