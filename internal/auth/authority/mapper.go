// Package authority translates provider-granted authorities into internal
// roles and group names.
package authority

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devilmonastery/ara/internal/auth/provider"
	"github.com/devilmonastery/ara/internal/domain/entities"
)

// ScopePrefix marks an authority derived from a granted OAuth2 scope
const ScopePrefix = "SCOPE_"

// Set is the result of mapping: roles ordered by rank, groups sorted by name
type Set struct {
	Roles  []entities.Role
	Groups []string
}

type rules struct {
	roles        map[string]entities.Role
	groups       map[string]string
	defaultRoles []entities.Role
}

// Mapper holds per-provider rules resolved at configuration load
type Mapper struct {
	rules map[string]rules
}

// NewMapper validates and resolves authority rules for every provider.
// Unknown role codes are configuration errors.
func NewMapper(registry *provider.Registry) (*Mapper, error) {
	m := &Mapper{rules: make(map[string]rules)}
	for _, p := range registry.List() {
		r := rules{
			roles:  make(map[string]entities.Role, len(p.Authorities.Roles)),
			groups: make(map[string]string, len(p.Authorities.Groups)),
		}
		for ext, code := range p.Authorities.Roles {
			role, err := entities.ParseRole(code)
			if err != nil {
				return nil, fmt.Errorf("provider %s: authorities.roles[%s]: %w", p.Code, ext, err)
			}
			r.roles[ext] = role
		}
		for ext, name := range p.Authorities.Groups {
			name = strings.TrimSpace(name)
			if name == "" {
				return nil, fmt.Errorf("provider %s: authorities.groups[%s]: empty group name", p.Code, ext)
			}
			r.groups[ext] = name
		}
		for _, code := range p.Authorities.DefaultRoles {
			role, err := entities.ParseRole(code)
			if err != nil {
				return nil, fmt.Errorf("provider %s: authorities.default_roles: %w", p.Code, err)
			}
			r.defaultRoles = append(r.defaultRoles, role)
		}
		m.rules[p.Code] = r
	}
	return m, nil
}

// Map translates granted authorities of a provider. Authorities without a
// rule are dropped. The result depends only on its inputs.
func (m *Mapper) Map(providerName string, granted []string) Set {
	r, ok := m.rules[provider.Canonical(providerName)]
	if !ok {
		return Set{Roles: []entities.Role{}, Groups: []string{}}
	}

	roles := append([]entities.Role(nil), r.defaultRoles...)
	groupSet := make(map[string]bool)
	for _, a := range granted {
		if role, ok := r.roles[a]; ok {
			roles = append(roles, role)
		}
		if g, ok := r.groups[a]; ok {
			groupSet[g] = true
		}
	}

	groups := make([]string, 0, len(groupSet))
	for g := range groupSet {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	return Set{Roles: entities.SortRoles(roles), Groups: groups}
}

// ScopeAuthorities converts granted OAuth2 scopes into SCOPE_ authorities
func ScopeAuthorities(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, ScopePrefix+s)
		}
	}
	return out
}
