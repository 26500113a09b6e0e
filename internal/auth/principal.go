package auth

import (
	"github.com/devilmonastery/ara/internal/auth/account"
	"github.com/devilmonastery/ara/internal/domain/entities"
)

// Principal is the authenticated user of one session
type Principal struct {
	// UserID is the durable user id
	UserID string

	User account.NormalizedUser

	// Authorities is the final role set ordered by rank
	Authorities []entities.Role

	// Groups the user belongs to through this login
	Groups []string

	// Issuer of the identity, the provider code when the provider has no issuer
	Issuer string

	// Claims and IDToken are the provider's payload, unchanged.
	// Neither survives a round trip through the session token.
	Claims  map[string]any
	IDToken string
}

// UserDTO is the principal as exposed to the REST layer
type UserDTO struct {
	MemberName string   `json:"memberName"`
	Name       string   `json:"name"`
	Issuer     string   `json:"issuer"`
	Roles      []string `json:"roles"`
}

// DTO converts the principal for the REST layer
func (p *Principal) DTO() UserDTO {
	roles := entities.RoleCodes(p.Authorities)
	return UserDTO{
		MemberName: p.User.Login,
		Name:       p.User.DisplayName(),
		Issuer:     p.Issuer,
		Roles:      roles,
	}
}

// HasRole checks if the principal holds a role
func (p *Principal) HasRole(role entities.Role) bool {
	for _, r := range p.Authorities {
		if r == role {
			return true
		}
	}
	return false
}
