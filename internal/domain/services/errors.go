package services

import (
	"errors"
	"fmt"

	"github.com/devilmonastery/ara/internal/auth/account"
	"github.com/devilmonastery/ara/internal/auth/provider"
	"github.com/devilmonastery/ara/internal/domain/repositories"
)

// ErrProviderExchange wraps failures fetching the raw user from the provider
var ErrProviderExchange = errors.New("provider exchange failed")

// PersistenceError is returned when the session upsert could not be written.
// Nothing from the failed login is kept.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session upsert failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Login failure reasons shown to the browser on the error redirect.
const (
	ReasonUnknownProvider = "unknown_provider"
	ReasonMapping         = "mapping"
	ReasonInternal        = "internal"
)

// LoginFailureReason returns the user-facing reason string for a login failure.
// Persistence and exchange errors report as internal.
func LoginFailureReason(err error) string {
	switch {
	case errors.Is(err, provider.ErrUnknownProvider):
		return ReasonUnknownProvider
	case IsMappingError(err):
		return ReasonMapping
	default:
		return ReasonInternal
	}
}

// IsMappingError checks if a login failed because the identity claim was missing
func IsMappingError(err error) bool {
	return errors.Is(err, account.ErrMapping)
}

// IsPersistenceError checks if a login failed writing the session
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsUserNotFound checks if the error indicates user not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, repositories.ErrUserNotFound)
}
