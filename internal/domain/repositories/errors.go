package repositories

import "errors"

// Domain-specific repository errors
var (
	// ErrUserNotFound is returned when a user cannot be found
	ErrUserNotFound = errors.New("user not found")

	// ErrGroupNotFound is returned when a group cannot be found
	ErrGroupNotFound = errors.New("group not found")

	// ErrGrantNotFound is returned when revoking a role or scope that is not held
	ErrGrantNotFound = errors.New("grant not found")

	// ErrTxDone is returned when a repository bound to a finished transaction is used
	ErrTxDone = errors.New("transaction already committed or rolled back")
)
