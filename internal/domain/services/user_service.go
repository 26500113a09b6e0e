package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/devilmonastery/ara/internal/auth/provider"
	"github.com/devilmonastery/ara/internal/domain/entities"
	"github.com/devilmonastery/ara/internal/domain/repositories"
)

// UserDetails is a user with everything granted to it
type UserDetails struct {
	User   *entities.User
	Roles  []*entities.UserRole
	Scopes []*entities.UserProjectScope
	Groups []*entities.UserGroupMembership
}

// UserService provides out-of-band administration of users.
// Every grant it makes is admin-sourced and survives later logins.
type UserService struct {
	uow   repositories.UnitOfWork
	repos *repositories.Repositories
	log   *slog.Logger
}

// NewUserService creates a new user service. Multi-step writes go through uow.
func NewUserService(uow repositories.UnitOfWork, repos *repositories.Repositories) *UserService {
	return &UserService{
		uow:   uow,
		repos: repos,
		log:   slog.Default().With(slog.String("service", "user")),
	}
}

// ListUsers lists users, optionally for one provider
func (s *UserService) ListUsers(ctx context.Context, providerName string, limit, offset int) ([]*entities.User, error) {
	users, err := s.repos.Users.List(ctx, repositories.ListUsersOptions{
		Limit:        limit,
		Offset:       offset,
		ProviderName: provider.Canonical(providerName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// GetUser returns a user by identity with its roles, scopes and groups
func (s *UserService) GetUser(ctx context.Context, providerName, login string) (*UserDetails, error) {
	user, err := s.lookup(ctx, providerName, login)
	if err != nil {
		return nil, err
	}

	roles, err := s.repos.Roles.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	scopes, err := s.repos.Scopes.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	groups, err := s.repos.Groups.ListMemberships(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	held := make([]entities.Role, 0, len(roles))
	for _, r := range roles {
		held = append(held, r.Role)
	}
	user.Roles = entities.SortRoles(held)

	return &UserDetails{User: user, Roles: roles, Scopes: scopes, Groups: groups}, nil
}

// GrantRole grants a role to a user
func (s *UserService) GrantRole(ctx context.Context, providerName, login, role string) error {
	r, err := entities.ParseRole(role)
	if err != nil {
		return err
	}
	user, err := s.lookup(ctx, providerName, login)
	if err != nil {
		return err
	}
	if err := s.repos.Roles.Grant(ctx, user.ID, r, entities.SourceAdmin); err != nil {
		return err
	}
	s.log.Info("granted role", slog.String("user_id", user.ID), slog.String("role", string(r)))
	return nil
}

// RevokeRole revokes an admin-granted role. Login roles are recomputed on
// every login and cannot be revoked here.
func (s *UserService) RevokeRole(ctx context.Context, providerName, login, role string) error {
	r, err := entities.ParseRole(role)
	if err != nil {
		return err
	}
	user, err := s.lookup(ctx, providerName, login)
	if err != nil {
		return err
	}
	if err := s.repos.Roles.Revoke(ctx, user.ID, r, entities.SourceAdmin); err != nil {
		return err
	}
	s.log.Info("revoked role", slog.String("user_id", user.ID), slog.String("role", string(r)))
	return nil
}

// GrantProjectScope sets a user's scope on a project
func (s *UserService) GrantProjectScope(ctx context.Context, providerName, login, project, scope string) error {
	ps, err := entities.ParseProjectScope(scope)
	if err != nil {
		return err
	}
	if project == "" {
		return fmt.Errorf("project code is required")
	}
	user, err := s.lookup(ctx, providerName, login)
	if err != nil {
		return err
	}
	return s.repos.Scopes.Set(ctx, &entities.UserProjectScope{
		UserID:      user.ID,
		ProjectCode: project,
		Scope:       ps,
	})
}

// RevokeProjectScope removes a user's scope on a project
func (s *UserService) RevokeProjectScope(ctx context.Context, providerName, login, project string) error {
	user, err := s.lookup(ctx, providerName, login)
	if err != nil {
		return err
	}
	return s.repos.Scopes.Revoke(ctx, user.ID, project)
}

// AddGroupMember adds a user to a group of its provider, creating the group if needed
func (s *UserService) AddGroupMember(ctx context.Context, providerName, login, group string) error {
	if group == "" {
		return fmt.Errorf("group name is required")
	}
	return repositories.WithinTransaction(ctx, s.uow, func(repos *repositories.Repositories) error {
		user, err := lookup(ctx, repos, providerName, login)
		if err != nil {
			return err
		}
		g := &entities.UserGroup{Name: group, ProviderName: user.ProviderName}
		if err := repos.Groups.Ensure(ctx, g); err != nil {
			return err
		}
		if err := repos.Groups.AddMember(ctx, g.ID, user.ID, entities.SourceAdmin); err != nil {
			return err
		}
		s.log.Info("added group member", slog.String("user_id", user.ID), slog.String("group", group))
		return nil
	})
}

// SetGroupProjectScope sets the scope every member of a group has on a project
func (s *UserService) SetGroupProjectScope(ctx context.Context, providerName, group, project, scope string) error {
	ps, err := entities.ParseProjectScope(scope)
	if err != nil {
		return err
	}
	g, err := s.repos.Groups.GetByName(ctx, group, provider.Canonical(providerName))
	if err != nil {
		return err
	}
	return s.repos.Groups.SetProjectScope(ctx, &entities.UserGroupProjectScope{
		GroupID:     g.ID,
		ProjectCode: project,
		Scope:       ps,
	})
}

func (s *UserService) lookup(ctx context.Context, providerName, login string) (*entities.User, error) {
	return lookup(ctx, s.repos, providerName, login)
}

func lookup(ctx context.Context, repos *repositories.Repositories, providerName, login string) (*entities.User, error) {
	user, err := repos.Users.GetByIdentity(ctx, provider.Canonical(providerName), login)
	if err != nil {
		return nil, fmt.Errorf("user %s/%s: %w", providerName, login, err)
	}
	return user, nil
}
