// Package account turns provider-specific user payloads into a
// provider-agnostic identity.
package account

import "github.com/devilmonastery/ara/internal/domain/entities"

// RawUser is what a provider returned for one login exchange
type RawUser struct {
	// Attributes are the userinfo and/or ID token claims
	Attributes map[string]any

	// Authorities granted by the provider: values of the configured
	// authority claim plus SCOPE_<scope> for each granted OAuth2 scope
	Authorities []string

	// IDToken is the raw OIDC ID token, empty for plain OAuth2 providers
	IDToken string

	// Issuer is the token issuer, empty when the provider has none
	Issuer string
}

// NormalizedUser is the provider-agnostic identity of a login.
// Login is never empty; optional fields are nil when the claim is absent.
type NormalizedUser struct {
	ProviderName string
	Login        string
	FirstName    *string
	LastName     *string
	Email        *string
	PictureURL   *string
}

// DisplayName returns "first last", falling back to the login
func (u *NormalizedUser) DisplayName() string {
	return entities.DisplayNameOf(u.FirstName, u.LastName, u.Login)
}
