package urlutil

import (
	"net/url"
	"strings"
)

// CallbackPath is where providers redirect back after authorization
const CallbackPath = "/login/oauth2/code/"

// BuildCallbackURL builds the redirect URL registered with a provider.
// Returns a URL like: {publicURL}/login/oauth2/code/{providerCode}
func BuildCallbackURL(publicURL, providerCode string) string {
	return strings.TrimRight(publicURL, "/") + CallbackPath + url.PathEscape(providerCode)
}

// BuildLoginErrorURL builds the frontend URL a failed login lands on.
// Returns a URL like: {frontendURL}/login?error={reason}
func BuildLoginErrorURL(frontendURL, reason string) (string, error) {
	u, err := url.Parse(frontendURL)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/login"
	q := u.Query()
	q.Set("error", reason)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
