package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/devilmonastery/ara/internal/pkg/urlutil"
)

// ErrInvalidIDToken wraps every ID token verification failure
var ErrInvalidIDToken = errors.New("invalid id token")

// IDTokenVerifier checks RS256 ID tokens against a JWKS, the expected
// issuers and the client id
type IDTokenVerifier struct {
	jwks     *JWKSCache
	issuers  []string
	clientID string
	leeway   time.Duration
}

// NewIDTokenVerifier creates a verifier. Any of issuers is accepted; Google
// for example uses both "https://accounts.google.com" and "accounts.google.com".
func NewIDTokenVerifier(jwks *JWKSCache, clientID string, issuers ...string) *IDTokenVerifier {
	var clean []string
	for _, iss := range issuers {
		if iss = urlutil.NormalizeIssuer(iss); iss != "" {
			clean = append(clean, iss)
		}
	}
	return &IDTokenVerifier{
		jwks:     jwks,
		issuers:  clean,
		clientID: clientID,
		leeway:   30 * time.Second,
	}
}

// Verify validates the token and returns its claims
func (v *IDTokenVerifier) Verify(ctx context.Context, rawIDToken string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(rawIDToken, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("missing kid in token header")
		}
		publicKey, err := v.jwks.GetKey(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}
		return publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidIDToken
	}

	iss, _ := mapClaims["iss"].(string)
	if !v.issuerAllowed(iss) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidIDToken, iss)
	}

	return mapClaims, nil
}

func (v *IDTokenVerifier) issuerAllowed(iss string) bool {
	if len(v.issuers) == 0 {
		return true
	}
	iss = urlutil.NormalizeIssuer(iss)
	for _, allowed := range v.issuers {
		if iss == allowed {
			return true
		}
	}
	return false
}
