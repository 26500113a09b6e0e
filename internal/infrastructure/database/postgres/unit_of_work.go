package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/devilmonastery/ara/internal/domain/repositories"
)

// NewRepositories builds every repository on a DB or Tx
func NewRepositories(db sqlx.ExtContext) *repositories.Repositories {
	return &repositories.Repositories{
		Users:  NewUserRepository(db),
		Roles:  NewRoleRepository(db),
		Scopes: NewScopeRepository(db),
		Groups: NewGroupRepository(db),
	}
}

// UnitOfWork starts PostgreSQL transactions
type UnitOfWork struct {
	db *sqlx.DB
}

// NewUnitOfWork creates a unit of work over a connection pool
func NewUnitOfWork(db *sqlx.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// Begin starts a READ COMMITTED transaction. Concurrent upserts of the same
// (provider_name, login) block on the row lock taken by INSERT .. ON CONFLICT.
func (u *UnitOfWork) Begin(ctx context.Context) (repositories.Transaction, error) {
	tx, err := u.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &transaction{tx: tx, repos: NewRepositories(tx)}, nil
}

type transaction struct {
	tx    *sqlx.Tx
	repos *repositories.Repositories
}

func (t *transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *transaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

func (t *transaction) GetRepositories() *repositories.Repositories {
	return t.repos
}
