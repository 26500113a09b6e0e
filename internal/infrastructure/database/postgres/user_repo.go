package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/devilmonastery/ara/internal/domain/entities"
	"github.com/devilmonastery/ara/internal/domain/repositories"
	"github.com/devilmonastery/ara/internal/pkg/idgen"
	"github.com/devilmonastery/ara/internal/pkg/metrics"
)

// UserRepository implements the UserRepository interface for PostgreSQL
type UserRepository struct {
	db  sqlx.ExtContext
	log *slog.Logger
}

// NewUserRepository creates a new PostgreSQL user repository on a DB or Tx
func NewUserRepository(db sqlx.ExtContext) repositories.UserRepository {
	return &UserRepository{
		db:  db,
		log: slog.Default().With(slog.String("repo", "user")),
	}
}

// userRow represents a user as stored in the database
type userRow struct {
	ID           string         `db:"id"`
	ProviderName string         `db:"provider_name"`
	Login        string         `db:"login"`
	FirstName    sql.NullString `db:"first_name"`
	LastName     sql.NullString `db:"last_name"`
	Email        sql.NullString `db:"email"`
	PictureURL   sql.NullString `db:"picture_url"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    time.Time      `db:"last_login"`
}

const userColumns = `id, provider_name, login, first_name, last_name, email, picture_url, created_at, updated_at, last_login`

// toEntity converts a userRow to a domain entity
func (r *userRow) toEntity() *entities.User {
	return &entities.User{
		ID:           r.ID,
		ProviderName: r.ProviderName,
		Login:        r.Login,
		FirstName:    nullStringPtr(r.FirstName),
		LastName:     nullStringPtr(r.LastName),
		Email:        nullStringPtr(r.Email),
		PictureURL:   nullStringPtr(r.PictureURL),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin,
	}
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func ptrNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Upsert inserts or refreshes a user keyed by (provider_name, login).
// xmax = 0 only for a freshly inserted row version.
func (r *UserRepository) Upsert(ctx context.Context, user *entities.User) (bool, error) {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordDBOperation("user", "upsert", time.Since(start), 1, err)
	}()

	if user.ID == "" {
		user.ID = idgen.GenerateID()
	}
	now := user.LastLogin
	if now.IsZero() {
		now = time.Now().UTC()
		user.LastLogin = now
	}

	query := `
		INSERT INTO users (
			id, provider_name, login, first_name, last_name, email, picture_url,
			created_at, updated_at, last_login
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $8)
		ON CONFLICT (provider_name, login) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			picture_url = EXCLUDED.picture_url,
			updated_at = EXCLUDED.updated_at,
			last_login = EXCLUDED.last_login
		RETURNING id, created_at, (xmax = 0) AS inserted`

	var (
		id        string
		createdAt time.Time
		inserted  bool
	)
	err = r.db.QueryRowxContext(ctx, query,
		user.ID,
		user.ProviderName,
		user.Login,
		ptrNullString(user.FirstName),
		ptrNullString(user.LastName),
		ptrNullString(user.Email),
		ptrNullString(user.PictureURL),
		now,
	).Scan(&id, &createdAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert user: %w", err)
	}

	user.ID = id
	user.CreatedAt = createdAt
	user.UpdatedAt = now

	r.log.Debug("upserted user",
		slog.String("id", id),
		slog.String("provider", user.ProviderName),
		slog.Bool("inserted", inserted))

	return inserted, nil
}

// GetByID retrieves a user by their ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("user", "get_by_id", time.Since(start), rowCount, err)
	}()

	var row userRow
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	err = sqlx.GetContext(ctx, r.db, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = repositories.ErrUserNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rowCount = 1
	return row.toEntity(), nil
}

// GetByIdentity retrieves a user by provider and login
func (r *UserRepository) GetByIdentity(ctx context.Context, providerName, login string) (*entities.User, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("user", "get_by_identity", time.Since(start), rowCount, err)
	}()

	var row userRow
	query := `SELECT ` + userColumns + ` FROM users WHERE provider_name = $1 AND login = $2`
	err = sqlx.GetContext(ctx, r.db, &row, query, providerName, login)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = repositories.ErrUserNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rowCount = 1
	return row.toEntity(), nil
}

// List returns users ordered by provider and login
func (r *UserRepository) List(ctx context.Context, opts repositories.ListUsersOptions) ([]*entities.User, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("user", "list", time.Since(start), rowCount, err)
	}()

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	var rows []userRow
	query := `SELECT ` + userColumns + ` FROM users
		WHERE ($1 = '' OR provider_name = $1)
		ORDER BY provider_name, login
		LIMIT $2 OFFSET $3`
	err = sqlx.SelectContext(ctx, r.db, &rows, query, opts.ProviderName, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	rowCount = int64(len(rows))
	users := make([]*entities.User, len(rows))
	for i := range rows {
		users[i] = rows[i].toEntity()
	}
	return users, nil
}
