package entities

import (
	"strings"
	"time"
)

// User is the durable record of a person who logged in through a provider.
// (ProviderName, Login) identifies a user across all time.
type User struct {
	ID           string    `json:"id" db:"id"`
	ProviderName string    `json:"provider_name" db:"provider_name"`
	Login        string    `json:"login" db:"login"`
	FirstName    *string   `json:"first_name,omitempty" db:"first_name"`
	LastName     *string   `json:"last_name,omitempty" db:"last_name"`
	Email        *string   `json:"email,omitempty" db:"email"`
	PictureURL   *string   `json:"picture_url,omitempty" db:"picture_url"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
	LastLogin    time.Time `json:"last_login" db:"last_login"`

	// Roles is the effective role set (login and admin grants), ordered by rank.
	// Populated by the session upsert; not a column.
	Roles []Role `json:"roles,omitempty" db:"-"`
}

// DisplayName returns "first last", falling back to the login
func (u *User) DisplayName() string {
	return DisplayNameOf(u.FirstName, u.LastName, u.Login)
}

// DisplayNameOf builds a display name from optional name parts
func DisplayNameOf(first, last *string, login string) string {
	var parts []string
	if first != nil && *first != "" {
		parts = append(parts, *first)
	}
	if last != nil && *last != "" {
		parts = append(parts, *last)
	}
	if len(parts) == 0 {
		return login
	}
	return strings.Join(parts, " ")
}

// HasRole checks if the user holds a specific role
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
