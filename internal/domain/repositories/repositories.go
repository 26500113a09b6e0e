package repositories

import (
	"context"
)

// Repositories groups the durable stores of the login domain
type Repositories struct {
	Users  UserRepository
	Roles  RoleRepository
	Scopes ScopeRepository
	Groups GroupRepository
}

// UnitOfWork starts transactions spanning every repository
type UnitOfWork interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction is one atomic write. Rollback after Commit is a no-op, so
// callers may always defer it.
type Transaction interface {
	Commit() error
	Rollback() error

	// GetRepositories returns repositories bound to this transaction
	GetRepositories() *Repositories
}

// WithinTransaction runs fn against transactional repositories and commits
// when it returns nil
func WithinTransaction(ctx context.Context, uow UnitOfWork, fn func(*Repositories) error) error {
	tx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx.GetRepositories()); err != nil {
		return err
	}
	return tx.Commit()
}

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
