package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/devilmonastery/ara/internal/domain/entities"
	"github.com/devilmonastery/ara/internal/domain/repositories"
	"github.com/devilmonastery/ara/internal/pkg/metrics"
)

// RoleRepository implements the RoleRepository interface for PostgreSQL
type RoleRepository struct {
	db  sqlx.ExtContext
	log *slog.Logger
}

// NewRoleRepository creates a new PostgreSQL role repository on a DB or Tx
func NewRoleRepository(db sqlx.ExtContext) repositories.RoleRepository {
	return &RoleRepository{
		db:  db,
		log: slog.Default().With(slog.String("repo", "role")),
	}
}

// ListByUser returns every role row of a user
func (r *RoleRepository) ListByUser(ctx context.Context, userID string) ([]*entities.UserRole, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("role", "list_by_user", time.Since(start), rowCount, err)
	}()

	var roles []*entities.UserRole
	query := `SELECT user_id, role, source, created_at FROM user_roles
		WHERE user_id = $1
		ORDER BY role, source`
	err = sqlx.SelectContext(ctx, r.db, &roles, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	rowCount = int64(len(roles))
	return roles, nil
}

// ReplaceLoginRoles removes login roles no longer granted and adds new ones.
// Rows that stay keep their created_at.
func (r *RoleRepository) ReplaceLoginRoles(ctx context.Context, userID string, roles []entities.Role) error {
	start := time.Now()
	var err error
	var affected int64
	defer func() {
		metrics.RecordDBOperation("role", "replace_login", time.Since(start), affected, err)
	}()

	codes := pq.Array(entities.RoleCodes(roles))

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM user_roles
		WHERE user_id = $1 AND source = 'login' AND NOT (role = ANY($2::text[]))`,
		userID, codes)
	if err != nil {
		return fmt.Errorf("failed to remove login roles: %w", err)
	}
	removed, _ := res.RowsAffected()

	res, err = r.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role, source, created_at)
		SELECT $1, unnest($2::text[]), 'login', $3
		ON CONFLICT (user_id, role, source) DO NOTHING`,
		userID, codes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add login roles: %w", err)
	}
	added, _ := res.RowsAffected()
	affected = removed + added

	r.log.Debug("replaced login roles",
		slog.String("user_id", userID),
		slog.Int64("removed", removed),
		slog.Int64("added", added))
	return nil
}

// Grant adds a role
func (r *RoleRepository) Grant(ctx context.Context, userID string, role entities.Role, source entities.GrantSource) error {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordDBOperation("role", "grant", time.Since(start), -1, err)
	}()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role, source, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role, source) DO NOTHING`,
		userID, string(role), string(source), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// Revoke removes a role
func (r *RoleRepository) Revoke(ctx context.Context, userID string, role entities.Role, source entities.GrantSource) error {
	start := time.Now()
	var err error
	var affected int64
	defer func() {
		metrics.RecordDBOperation("role", "revoke", time.Since(start), affected, err)
	}()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role = $2 AND source = $3`,
		userID, string(role), string(source))
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	affected, _ = res.RowsAffected()
	if affected == 0 {
		err = repositories.ErrGrantNotFound
		return err
	}
	return nil
}
