package identity

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestFromTokenExtractsSubject(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{"sub": "user-42"})

	provider, err := FromToken(raw)
	require.NoError(t, err)

	userID, ok := provider.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "user-42", userID)
}

func TestFromTokenRejectsGarbage(t *testing.T) {
	_, err := FromToken("not-a-jwt")
	assert.Error(t, err)
}

func TestFromTokenRejectsMissingSubject(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{"role": "editor"})
	_, err := FromToken(raw)
	assert.Error(t, err)
}

func TestEmptyTokenMeansNoUser(t *testing.T) {
	provider, err := FromToken("")
	require.NoError(t, err)

	_, ok := provider.CurrentUserID()
	assert.False(t, ok, "no token, no authenticated user")
}
