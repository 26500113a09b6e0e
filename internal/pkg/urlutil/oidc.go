package urlutil

import (
	"fmt"
	"strings"
)

// NormalizeIssuer trims the trailing slash so that issuers compare equal
// however they were configured
func NormalizeIssuer(issuer string) string {
	return strings.TrimRight(strings.TrimSpace(issuer), "/")
}

// OIDCDiscoveryURL builds the OIDC discovery document URL for the given issuer.
// Returns a URL like: {issuer}/.well-known/openid-configuration
func OIDCDiscoveryURL(issuer string) string {
	return fmt.Sprintf("%s/.well-known/openid-configuration", NormalizeIssuer(issuer))
}
