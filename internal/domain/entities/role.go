package entities

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Role is a platform-wide authority
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleAuditing   Role = "AUDITING"
)

var roleRank = map[Role]int{
	RoleSuperAdmin: 0,
	RoleAdmin:      1,
	RoleAuditing:   2,
}

// AllRoles lists every role in rank order
func AllRoles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleAuditing}
}

// ParseRole converts a role code, case-insensitively
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := roleRank[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is part of the role vocabulary
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// SortRoles deduplicates roles and orders them by rank
func SortRoles(roles []Role) []Role {
	seen := make(map[Role]bool, len(roles))
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := roleRank[out[i]]
		rj, jok := roleRank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// RoleCodes converts roles to their string codes
func RoleCodes(roles []Role) []string {
	codes := make([]string, len(roles))
	for i, r := range roles {
		codes[i] = string(r)
	}
	return codes
}

// GrantSource records where a role or group membership came from.
// Login grants are recomputed on every login; admin grants are only changed explicitly.
type GrantSource string

const (
	SourceLogin GrantSource = "login"
	SourceAdmin GrantSource = "admin"
)

// UserRole is one role held by a user
type UserRole struct {
	UserID    string      `json:"user_id" db:"user_id"`
	Role      Role        `json:"role" db:"role"`
	Source    GrantSource `json:"source" db:"source"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}
