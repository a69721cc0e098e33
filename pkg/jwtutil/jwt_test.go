package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/config"
)

func initTestConfig(t *testing.T) {
	t.Helper()
	Initialize(&config.JWTConfig{SigningKey: "test-signing-key", ExpirationHours: 24})
}

func TestGenerateAndValidateRoundTrip(t *testing.T) {
	initTestConfig(t)

	token, err := GenerateToken("user-1", "tenant-1", "org_admin", "admin@acme.test")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "org_admin", claims.Role)
	assert.Equal(t, "admin@acme.test", claims.Email)
}

func TestSuperAdminTokenHasNoTenant(t *testing.T) {
	initTestConfig(t)

	token, err := GenerateToken("owner-1", "", "super_admin", "owner@timewise.test")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Empty(t, claims.TenantID)
	assert.Equal(t, "super_admin", claims.Role)
}

func TestExpiredTokenIsDistinctKind(t *testing.T) {
	initTestConfig(t)

	claims := SessionClaims{
		UserID: "user-1",
		Role:   "manager",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-25 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = ValidateToken(signed)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindTokenExpired))
}

func TestTamperedTokenIsInvalidKind(t *testing.T) {
	initTestConfig(t)

	token, err := GenerateToken("user-1", "tenant-1", "manager", "m@acme.test")
	require.NoError(t, err)

	_, err = ValidateToken(token + "x")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindTokenInvalid))
	assert.False(t, apperr.IsKind(err, apperr.KindTokenExpired))
}

func TestWrongSigningKeyRejected(t *testing.T) {
	Initialize(&config.JWTConfig{SigningKey: "other-key", ExpirationHours: 24})
	token, err := GenerateToken("user-1", "tenant-1", "manager", "m@acme.test")
	require.NoError(t, err)

	initTestConfig(t)
	_, err = ValidateToken(token)
	assert.True(t, apperr.IsKind(err, apperr.KindTokenInvalid))
}
