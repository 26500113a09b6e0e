package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devilmonastery/ara/internal/auth/account"
	"github.com/devilmonastery/ara/internal/domain/entities"
)

func strPtr(s string) *string { return &s }

func testPrincipal() *Principal {
	return &Principal{
		UserID: "1001",
		User: account.NormalizedUser{
			ProviderName: "google",
			Login:        "123",
			FirstName:    strPtr("Ann"),
			LastName:     strPtr("Lee"),
			Email:        strPtr("ann@x.com"),
		},
		Authorities: []entities.Role{entities.RoleAdmin, entities.RoleAuditing},
		Groups:      []string{"qa"},
		Issuer:      "https://accounts.google.com",
		Claims:      map[string]any{"sub": "123"},
		IDToken:     "raw.id.token",
	}
}

func TestPrincipalDTO(t *testing.T) {
	dto := testPrincipal().DTO()
	assert.Equal(t, UserDTO{
		MemberName: "123",
		Name:       "Ann Lee",
		Issuer:     "https://accounts.google.com",
		Roles:      []string{"ADMIN", "AUDITING"},
	}, dto)

	p := &Principal{User: account.NormalizedUser{Login: "annl"}}
	dto = p.DTO()
	assert.Equal(t, "annl", dto.Name)
	assert.Equal(t, []string{}, dto.Roles)
}

func TestSessionTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, expiresAt, err := m.GenerateToken(testPrincipal())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	p, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "1001", p.UserID)
	assert.Equal(t, "123", p.User.Login)
	assert.Equal(t, "google", p.User.ProviderName)
	assert.Equal(t, strPtr("Ann"), p.User.FirstName)
	assert.Equal(t, []entities.Role{entities.RoleAdmin, entities.RoleAuditing}, p.Authorities)
	assert.Equal(t, []string{"qa"}, p.Groups)
	assert.Equal(t, "https://accounts.google.com", p.Issuer)
	assert.Nil(t, p.Claims)
	assert.Empty(t, p.IDToken)
}

func TestValidateTokenRejects(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	token, _, err := m.GenerateToken(testPrincipal())
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewJWTManager("other", time.Hour).ValidateToken(token)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("expired", func(t *testing.T) {
		later := NewJWTManager("test-secret", time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.ValidateToken(token)
		assert.True(t, errors.Is(err, ErrExpiredToken))
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Login: "x"})
		s, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.ValidateToken(s)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ValidateToken("not-a-token")
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})
}

func TestPrincipalContext(t *testing.T) {
	_, err := GetPrincipalFromContext(context.Background())
	assert.True(t, errors.Is(err, ErrUnauthorized))

	ctx := SetPrincipalInContext(context.Background(), testPrincipal())
	p, err := GetPrincipalFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1001", p.UserID)

	assert.NoError(t, RequireAdmin(ctx))
	assert.NoError(t, RequireRole(ctx, entities.RoleAuditing))
	assert.True(t, errors.Is(RequireRole(ctx, entities.RoleSuperAdmin), ErrForbidden))
	assert.True(t, errors.Is(RequireAdmin(context.Background()), ErrUnauthorized))
}
