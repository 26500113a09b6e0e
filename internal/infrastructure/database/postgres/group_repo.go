package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/devilmonastery/ara/internal/domain/entities"
	"github.com/devilmonastery/ara/internal/domain/repositories"
	"github.com/devilmonastery/ara/internal/pkg/idgen"
	"github.com/devilmonastery/ara/internal/pkg/metrics"
)

// GroupRepository implements the GroupRepository interface for PostgreSQL
type GroupRepository struct {
	db  sqlx.ExtContext
	log *slog.Logger
}

// NewGroupRepository creates a new PostgreSQL group repository on a DB or Tx
func NewGroupRepository(db sqlx.ExtContext) repositories.GroupRepository {
	return &GroupRepository{
		db:  db,
		log: slog.Default().With(slog.String("repo", "group")),
	}
}

// membershipRow is one row of the membership join
type membershipRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	ProviderName string         `db:"provider_name"`
	Description  sql.NullString `db:"description"`
	CreatedAt    time.Time      `db:"created_at"`
	Source       string         `db:"source"`
	JoinedAt     time.Time      `db:"joined_at"`
}

type groupRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	ProviderName string         `db:"provider_name"`
	Description  sql.NullString `db:"description"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r *groupRow) toEntity() *entities.UserGroup {
	return &entities.UserGroup{
		ID:           r.ID,
		Name:         r.Name,
		ProviderName: r.ProviderName,
		Description:  nullStringPtr(r.Description),
		CreatedAt:    r.CreatedAt,
	}
}

// Ensure creates the group if it does not exist and loads its id. An
// existing group is read, never updated, so concurrent logins mapping to the
// same group do not lock its row.
func (r *GroupRepository) Ensure(ctx context.Context, group *entities.UserGroup) error {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("group", "ensure", time.Since(start), rowCount, err)
	}()

	if group.ID == "" {
		group.ID = idgen.GenerateID()
	}

	err = r.db.QueryRowxContext(ctx, `
		INSERT INTO user_groups (id, name, provider_name, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name, provider_name) DO NOTHING
		RETURNING id, created_at`,
		group.ID, group.Name, group.ProviderName, ptrNullString(group.Description), time.Now().UTC(),
	).Scan(&group.ID, &group.CreatedAt)
	if err == nil {
		rowCount = 1
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to ensure group: %w", err)
	}

	err = r.db.QueryRowxContext(ctx, `
		SELECT id, created_at FROM user_groups
		WHERE name = $1 AND provider_name = $2`,
		group.Name, group.ProviderName,
	).Scan(&group.ID, &group.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to load group: %w", err)
	}
	return nil
}

// GetByName retrieves a group by name and provider
func (r *GroupRepository) GetByName(ctx context.Context, name, providerName string) (*entities.UserGroup, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("group", "get_by_name", time.Since(start), rowCount, err)
	}()

	var row groupRow
	err = sqlx.GetContext(ctx, r.db, &row, `
		SELECT id, name, provider_name, description, created_at FROM user_groups
		WHERE name = $1 AND provider_name = $2`, name, providerName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = repositories.ErrGroupNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	rowCount = 1
	return row.toEntity(), nil
}

// ListMemberships returns the groups a user belongs to
func (r *GroupRepository) ListMemberships(ctx context.Context, userID string) ([]*entities.UserGroupMembership, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("group", "list_memberships", time.Since(start), rowCount, err)
	}()

	var rows []membershipRow
	err = sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT g.id, g.name, g.provider_name, g.description, g.created_at,
		       m.source, m.created_at AS joined_at
		FROM user_group_members m
		JOIN user_groups g ON g.id = m.group_id
		WHERE m.user_id = $1
		ORDER BY g.name, m.source`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group memberships: %w", err)
	}

	rowCount = int64(len(rows))
	out := make([]*entities.UserGroupMembership, len(rows))
	for i, row := range rows {
		out[i] = &entities.UserGroupMembership{
			Group: entities.UserGroup{
				ID:           row.ID,
				Name:         row.Name,
				ProviderName: row.ProviderName,
				Description:  nullStringPtr(row.Description),
				CreatedAt:    row.CreatedAt,
			},
			Source:    entities.GrantSource(row.Source),
			CreatedAt: row.JoinedAt,
		}
	}
	return out, nil
}

// ReplaceLoginMemberships removes login memberships no longer granted and adds new ones
func (r *GroupRepository) ReplaceLoginMemberships(ctx context.Context, userID string, groupIDs []string) error {
	start := time.Now()
	var err error
	var affected int64
	defer func() {
		metrics.RecordDBOperation("group", "replace_login", time.Since(start), affected, err)
	}()

	// A nil slice would bind as NULL and match nothing in ANY()
	if groupIDs == nil {
		groupIDs = []string{}
	}
	ids := pq.Array(groupIDs)

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM user_group_members
		WHERE user_id = $1 AND source = 'login' AND NOT (group_id = ANY($2::text[]))`,
		userID, ids)
	if err != nil {
		return fmt.Errorf("failed to remove login memberships: %w", err)
	}
	removed, _ := res.RowsAffected()

	res, err = r.db.ExecContext(ctx, `
		INSERT INTO user_group_members (group_id, user_id, source, created_at)
		SELECT unnest($2::text[]), $1, 'login', $3
		ON CONFLICT (group_id, user_id, source) DO NOTHING`,
		userID, ids, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add login memberships: %w", err)
	}
	added, _ := res.RowsAffected()
	affected = removed + added
	return nil
}

// AddMember adds a membership
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID string, source entities.GrantSource) error {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordDBOperation("group", "add_member", time.Since(start), -1, err)
	}()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_group_members (group_id, user_id, source, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id, source) DO NOTHING`,
		groupID, userID, string(source), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// SetProjectScope creates or replaces the scope of a group on a project
func (r *GroupRepository) SetProjectScope(ctx context.Context, scope *entities.UserGroupProjectScope) error {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordDBOperation("group", "set_project_scope", time.Since(start), 1, err)
	}()

	err = r.db.QueryRowxContext(ctx, `
		INSERT INTO user_group_project_scopes (group_id, project_code, scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (group_id, project_code) DO UPDATE SET
			scope = EXCLUDED.scope,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`,
		scope.GroupID, scope.ProjectCode, string(scope.Scope), time.Now().UTC(),
	).Scan(&scope.CreatedAt, &scope.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to set group project scope: %w", err)
	}
	return nil
}

// ListProjectScopes returns the project scopes of a group
func (r *GroupRepository) ListProjectScopes(ctx context.Context, groupID string) ([]*entities.UserGroupProjectScope, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("group", "list_project_scopes", time.Since(start), rowCount, err)
	}()

	var scopes []*entities.UserGroupProjectScope
	err = sqlx.SelectContext(ctx, r.db, &scopes, `
		SELECT group_id, project_code, scope, created_at, updated_at FROM user_group_project_scopes
		WHERE group_id = $1
		ORDER BY project_code`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group project scopes: %w", err)
	}
	rowCount = int64(len(scopes))
	return scopes, nil
}
