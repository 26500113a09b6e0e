package account

import (
	"fmt"

	"github.com/devilmonastery/ara/internal/auth/provider"
)

// Kind identifies an account strategy variant
type Kind int

const (
	KindGeneric Kind = iota
	KindGoogle
	KindGitHub
)

func (k Kind) String() string {
	switch k {
	case KindGoogle:
		return "google"
	case KindGitHub:
		return "github"
	default:
		return "generic"
	}
}

// Mapping names the source claim of each normalized field. When FullName is
// set and the first/last name claims are absent, the full name is split on
// its first space.
type Mapping struct {
	Login     string
	FirstName string
	LastName  string
	FullName  string
	Email     string
	Picture   string
}

var (
	googleMapping = Mapping{
		Login:     "sub",
		FirstName: "given_name",
		LastName:  "family_name",
		Email:     "email",
		Picture:   "picture",
	}

	githubMapping = Mapping{
		Login:    "login",
		FullName: "name",
		Email:    "email",
		Picture:  "avatar_url",
	}

	// DefaultMapping is used by generic providers for every field they do not configure
	DefaultMapping = Mapping{
		Login:     "sub",
		FirstName: "given_name",
		LastName:  "family_name",
		Email:     "email",
		Picture:   "picture",
	}
)

// Strategy normalizes the raw attributes of one provider
type Strategy struct {
	Kind         Kind
	ProviderName string
	Mapping      Mapping
}

// GoogleStrategy returns the built-in Google strategy
func GoogleStrategy(providerName string) Strategy {
	return Strategy{Kind: KindGoogle, ProviderName: providerName, Mapping: googleMapping}
}

// GitHubStrategy returns the built-in GitHub strategy
func GitHubStrategy(providerName string) Strategy {
	return Strategy{Kind: KindGitHub, ProviderName: providerName, Mapping: githubMapping}
}

// GenericStrategy returns a strategy using custom attributes over the default mapping
func GenericStrategy(providerName string, custom provider.AttributeMapping) Strategy {
	m := DefaultMapping
	if custom.Login != "" {
		m.Login = custom.Login
	}
	if custom.FirstName != "" {
		m.FirstName = custom.FirstName
	}
	if custom.LastName != "" {
		m.LastName = custom.LastName
	}
	if custom.Email != "" {
		m.Email = custom.Email
	}
	if custom.Picture != "" {
		m.Picture = custom.Picture
	}
	return Strategy{Kind: KindGeneric, ProviderName: providerName, Mapping: m}
}

// Normalize extracts the identity from raw attributes. A missing or empty
// login claim fails with *MappingError and no user.
func (s Strategy) Normalize(attrs map[string]any) (*NormalizedUser, error) {
	login, ok := claimString(attrs, s.Mapping.Login)
	if !ok {
		return nil, &MappingError{Provider: s.ProviderName, Claim: s.Mapping.Login}
	}

	u := &NormalizedUser{
		ProviderName: s.ProviderName,
		Login:        login,
		FirstName:    optionalClaim(attrs, s.Mapping.FirstName),
		LastName:     optionalClaim(attrs, s.Mapping.LastName),
		Email:        optionalClaim(attrs, s.Mapping.Email),
		PictureURL:   optionalClaim(attrs, s.Mapping.Picture),
	}

	if s.Mapping.FullName != "" && u.FirstName == nil && u.LastName == nil {
		if full, ok := claimString(attrs, s.Mapping.FullName); ok {
			u.FirstName, u.LastName = splitName(full)
		}
	}

	return u, nil
}

func (s Strategy) String() string {
	return fmt.Sprintf("%s(%s)", s.Kind, s.ProviderName)
}
