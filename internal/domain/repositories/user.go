package repositories

import (
	"context"

	"github.com/devilmonastery/ara/internal/domain/entities"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Upsert inserts the user or, when (provider_name, login) already exists,
	// refreshes its display attributes and last login. The row stays locked
	// until the surrounding transaction ends. On return user.ID and
	// user.CreatedAt hold the stored values; inserted reports a first login.
	Upsert(ctx context.Context, user *entities.User) (inserted bool, err error)

	// GetByID retrieves a user by their ID
	GetByID(ctx context.Context, id string) (*entities.User, error)

	// GetByIdentity retrieves a user by provider and login
	GetByIdentity(ctx context.Context, providerName, login string) (*entities.User, error)

	// List users with pagination and optional filtering
	List(ctx context.Context, opts ListUsersOptions) ([]*entities.User, error)
}

// ListUsersOptions provides filtering and pagination options for listing users
type ListUsersOptions struct {
	Limit        int
	Offset       int
	ProviderName string // filter by provider, empty for all
}

// RoleRepository manages platform roles held by users
type RoleRepository interface {
	// ListByUser returns every role row for a user, ordered by role then source
	ListByUser(ctx context.Context, userID string) ([]*entities.UserRole, error)

	// ReplaceLoginRoles makes the login-sourced roles of a user exactly roles.
	// Admin-sourced rows are untouched.
	ReplaceLoginRoles(ctx context.Context, userID string, roles []entities.Role) error

	// Grant adds a role; granting an existing role is a no-op
	Grant(ctx context.Context, userID string, role entities.Role, source entities.GrantSource) error

	// Revoke removes a role; ErrGrantNotFound when it was not held
	Revoke(ctx context.Context, userID string, role entities.Role, source entities.GrantSource) error
}

// ScopeRepository manages per-project scopes held by users
type ScopeRepository interface {
	// ListByUser returns the project scopes of a user ordered by project
	ListByUser(ctx context.Context, userID string) ([]*entities.UserProjectScope, error)

	// Set creates or replaces the scope of a user on a project
	Set(ctx context.Context, scope *entities.UserProjectScope) error

	// Revoke removes the scope of a user on a project; ErrGrantNotFound when absent
	Revoke(ctx context.Context, userID, projectCode string) error
}

// GroupRepository manages groups, memberships and group project scopes
type GroupRepository interface {
	// Ensure creates the group if (name, provider_name) is new; on return
	// group.ID and group.CreatedAt hold the stored values
	Ensure(ctx context.Context, group *entities.UserGroup) error

	// GetByName retrieves a group by name and provider
	GetByName(ctx context.Context, name, providerName string) (*entities.UserGroup, error)

	// ListMemberships returns the groups a user belongs to, ordered by group name
	ListMemberships(ctx context.Context, userID string) ([]*entities.UserGroupMembership, error)

	// ReplaceLoginMemberships makes the login-sourced memberships of a user exactly groupIDs.
	// Admin-sourced memberships are untouched.
	ReplaceLoginMemberships(ctx context.Context, userID string, groupIDs []string) error

	// AddMember adds a membership; adding an existing membership is a no-op
	AddMember(ctx context.Context, groupID, userID string, source entities.GrantSource) error

	// SetProjectScope creates or replaces the scope of a group on a project
	SetProjectScope(ctx context.Context, scope *entities.UserGroupProjectScope) error

	// ListProjectScopes returns the project scopes of a group ordered by project
	ListProjectScopes(ctx context.Context, groupID string) ([]*entities.UserGroupProjectScope, error)
}
