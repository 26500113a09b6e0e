package entities

import (
	"fmt"
	"strings"
	"time"
)

// ProjectScope is a role limited to one project
type ProjectScope string

const (
	ScopeAdmin    ProjectScope = "ADMIN"
	ScopeMember   ProjectScope = "MEMBER"
	ScopeObserver ProjectScope = "OBSERVER"
)

// ParseProjectScope converts a scope code, case-insensitively
func ParseProjectScope(s string) (ProjectScope, error) {
	switch ps := ProjectScope(strings.ToUpper(strings.TrimSpace(s))); ps {
	case ScopeAdmin, ScopeMember, ScopeObserver:
		return ps, nil
	default:
		return "", fmt.Errorf("unknown project scope %q", s)
	}
}

// UserProjectScope grants a user a scope on a project
type UserProjectScope struct {
	UserID      string       `json:"user_id" db:"user_id"`
	ProjectCode string       `json:"project_code" db:"project_code"`
	Scope       ProjectScope `json:"scope" db:"scope"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}
