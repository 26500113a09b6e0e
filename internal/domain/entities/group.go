package entities

import "time"

// UserGroup is a named group of users within one provider.
// (Name, ProviderName) is unique.
type UserGroup struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	ProviderName string    `json:"provider_name" db:"provider_name"`
	Description  *string   `json:"description,omitempty" db:"description"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// UserGroupMembership is a user's membership in a group
type UserGroupMembership struct {
	Group     UserGroup   `json:"group"`
	Source    GrantSource `json:"source"`
	CreatedAt time.Time   `json:"created_at"`
}

// UserGroupProjectScope grants every member of a group a scope on a project
type UserGroupProjectScope struct {
	GroupID     string       `json:"group_id" db:"group_id"`
	ProjectCode string       `json:"project_code" db:"project_code"`
	Scope       ProjectScope `json:"scope" db:"scope"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}
