package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/devilmonastery/ara/internal/auth/account"
	"github.com/devilmonastery/ara/internal/auth/authority"
	"github.com/devilmonastery/ara/internal/domain/entities"
	"github.com/devilmonastery/ara/internal/domain/repositories"
	"github.com/devilmonastery/ara/internal/pkg/logger"
)

// SessionConfig controls what a login writes
type SessionConfig struct {
	// DefaultProject receives DefaultScope on a user's first login; empty disables it
	DefaultProject string
	DefaultScope   entities.ProjectScope

	// WriteTimeout bounds the whole upsert transaction
	WriteTimeout time.Duration
}

// SessionService persists the durable state of a login
type SessionService struct {
	uow repositories.UnitOfWork
	cfg SessionConfig
	log *slog.Logger
}

// NewSessionService creates a new session service
func NewSessionService(uow repositories.UnitOfWork, cfg SessionConfig) *SessionService {
	if cfg.DefaultScope == "" {
		cfg.DefaultScope = entities.ScopeObserver
	}
	return &SessionService{
		uow: uow,
		cfg: cfg,
		log: slog.Default().With(slog.String("service", "session")),
	}
}

// UpsertUserSession creates or refreshes the user keyed by (providerName, login)
// and replaces its login-sourced roles and group memberships with authorities.
// Admin grants and project scopes are never removed. Once started the write
// runs to completion even if ctx is cancelled.
//
// The returned user carries the effective role set in Roles.
func (s *SessionService) UpsertUserSession(ctx context.Context, user *account.NormalizedUser, authorities authority.Set, providerName string) (*entities.User, error) {
	ctx = context.WithoutCancel(ctx)
	if s.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.WriteTimeout)
		defer cancel()
	}
	log := logger.WithIdentity(s.log, providerName, user.Login)

	tx, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "begin", Err: err}
	}
	defer tx.Rollback()
	repos := tx.GetRepositories()

	entity := &entities.User{
		ProviderName: providerName,
		Login:        user.Login,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Email:        user.Email,
		PictureURL:   user.PictureURL,
		LastLogin:    time.Now().UTC(),
	}
	inserted, err := repos.Users.Upsert(ctx, entity)
	if err != nil {
		return nil, &PersistenceError{Op: "upsert_user", Err: err}
	}

	if inserted && s.cfg.DefaultProject != "" {
		err = repos.Scopes.Set(ctx, &entities.UserProjectScope{
			UserID:      entity.ID,
			ProjectCode: s.cfg.DefaultProject,
			Scope:       s.cfg.DefaultScope,
		})
		if err != nil {
			return nil, &PersistenceError{Op: "default_scope", Err: err}
		}
	}

	if err := repos.Roles.ReplaceLoginRoles(ctx, entity.ID, authorities.Roles); err != nil {
		return nil, &PersistenceError{Op: "replace_roles", Err: err}
	}

	groupIDs := make([]string, 0, len(authorities.Groups))
	for _, name := range authorities.Groups {
		g := &entities.UserGroup{Name: name, ProviderName: providerName}
		if err := repos.Groups.Ensure(ctx, g); err != nil {
			return nil, &PersistenceError{Op: "ensure_group", Err: err}
		}
		groupIDs = append(groupIDs, g.ID)
	}
	if err := repos.Groups.ReplaceLoginMemberships(ctx, entity.ID, groupIDs); err != nil {
		return nil, &PersistenceError{Op: "replace_groups", Err: err}
	}

	held, err := repos.Roles.ListByUser(ctx, entity.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "read_roles", Err: err}
	}
	roles := make([]entities.Role, 0, len(held))
	for _, r := range held {
		roles = append(roles, r.Role)
	}
	entity.Roles = entities.SortRoles(roles)

	if err := tx.Commit(); err != nil {
		return nil, &PersistenceError{Op: "commit", Err: err}
	}

	log.Info("user session upserted",
		slog.String("user_id", entity.ID),
		slog.Bool("first_login", inserted),
		slog.Int("roles", len(entity.Roles)),
		slog.Int("groups", len(groupIDs)))
	return entity, nil
}
