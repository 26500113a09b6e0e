package account

import (
	"errors"
	"fmt"
)

// ErrMapping matches every MappingError with errors.Is
var ErrMapping = errors.New("account mapping failed")

// MappingError reports that the mandatory identifier claim was missing
// from a provider payload
type MappingError struct {
	Provider string
	Claim    string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("provider %s: mandatory claim %q missing from user attributes", e.Provider, e.Claim)
}

func (e *MappingError) Is(target error) bool {
	return target == ErrMapping
}
