package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/devilmonastery/ara/internal/auth/account"
	"github.com/devilmonastery/ara/internal/domain/entities"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const tokenIssuer = "ara-gateway"

// Claims is the session token carried in the cookie session
type Claims struct {
	UserID     string   `json:"user_id"`
	Provider   string   `json:"provider"`
	Login      string   `json:"login"`
	FirstName  *string  `json:"first_name,omitempty"`
	LastName   *string  `json:"last_name,omitempty"`
	Email      *string  `json:"email,omitempty"`
	Picture    *string  `json:"picture,omitempty"`
	IDPIssuer  string   `json:"idp_issuer,omitempty"`
	Roles      []string `json:"roles"`
	Groups     []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager handles session token creation and validation
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	now           func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		now:           time.Now,
	}
}

// GenerateToken signs a session token for a principal
func (m *JWTManager) GenerateToken(p *Principal) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.tokenDuration)

	tokenID, err := GenerateTokenID()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token id: %w", err)
	}

	claims := Claims{
		UserID:    p.UserID,
		Provider:  p.User.ProviderName,
		Login:     p.User.Login,
		FirstName: p.User.FirstName,
		LastName:  p.User.LastName,
		Email:     p.User.Email,
		Picture:   p.User.PictureURL,
		IDPIssuer: p.Issuer,
		Roles:     entities.RoleCodes(p.Authorities),
		Groups:    p.Groups,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   p.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a session token and returns the principal it carries
func (m *JWTManager) ValidateToken(tokenString string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	roles := make([]entities.Role, 0, len(claims.Roles))
	for _, r := range claims.Roles {
		role := entities.Role(r)
		if role.Valid() {
			roles = append(roles, role)
		}
	}

	return &Principal{
		UserID: claims.UserID,
		User: account.NormalizedUser{
			ProviderName: claims.Provider,
			Login:        claims.Login,
			FirstName:    claims.FirstName,
			LastName:     claims.LastName,
			Email:        claims.Email,
			PictureURL:   claims.Picture,
		},
		Authorities: entities.SortRoles(roles),
		Groups:      claims.Groups,
		Issuer:      claims.IDPIssuer,
	}, nil
}

// GenerateTokenID creates a random token ID for tracking
func GenerateTokenID() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
