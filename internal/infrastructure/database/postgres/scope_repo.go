package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/devilmonastery/ara/internal/domain/entities"
	"github.com/devilmonastery/ara/internal/domain/repositories"
	"github.com/devilmonastery/ara/internal/pkg/metrics"
)

// ScopeRepository implements the ScopeRepository interface for PostgreSQL
type ScopeRepository struct {
	db  sqlx.ExtContext
	log *slog.Logger
}

// NewScopeRepository creates a new PostgreSQL project scope repository on a DB or Tx
func NewScopeRepository(db sqlx.ExtContext) repositories.ScopeRepository {
	return &ScopeRepository{
		db:  db,
		log: slog.Default().With(slog.String("repo", "project_scope")),
	}
}

// ListByUser returns the project scopes of a user
func (r *ScopeRepository) ListByUser(ctx context.Context, userID string) ([]*entities.UserProjectScope, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("project_scope", "list_by_user", time.Since(start), rowCount, err)
	}()

	var scopes []*entities.UserProjectScope
	query := `SELECT user_id, project_code, scope, created_at, updated_at FROM user_project_scopes
		WHERE user_id = $1
		ORDER BY project_code`
	err = sqlx.SelectContext(ctx, r.db, &scopes, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project scopes: %w", err)
	}
	rowCount = int64(len(scopes))
	return scopes, nil
}

// Set creates or replaces the scope of a user on a project
func (r *ScopeRepository) Set(ctx context.Context, scope *entities.UserProjectScope) error {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordDBOperation("project_scope", "set", time.Since(start), 1, err)
	}()

	now := time.Now().UTC()
	err = r.db.QueryRowxContext(ctx, `
		INSERT INTO user_project_scopes (user_id, project_code, scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, project_code) DO UPDATE SET
			scope = EXCLUDED.scope,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`,
		scope.UserID, scope.ProjectCode, string(scope.Scope), now,
	).Scan(&scope.CreatedAt, &scope.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to set project scope: %w", err)
	}

	r.log.Debug("set project scope",
		slog.String("user_id", scope.UserID),
		slog.String("project", scope.ProjectCode),
		slog.String("scope", string(scope.Scope)))
	return nil
}

// Revoke removes the scope of a user on a project
func (r *ScopeRepository) Revoke(ctx context.Context, userID, projectCode string) error {
	start := time.Now()
	var err error
	var affected int64
	defer func() {
		metrics.RecordDBOperation("project_scope", "revoke", time.Since(start), affected, err)
	}()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_project_scopes WHERE user_id = $1 AND project_code = $2`,
		userID, projectCode)
	if err != nil {
		return fmt.Errorf("failed to revoke project scope: %w", err)
	}
	affected, _ = res.RowsAffected()
	if affected == 0 {
		err = repositories.ErrGrantNotFound
		return err
	}
	return nil
}
