package auth

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthenticate_BearerToken(t *testing.T) {
	a := NewAuthenticator("secret", false)

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, "secret", jwt.MapClaims{"account": "acc_42"}))

	account, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "acc_42", account)
}

func TestAuthenticate_SubjectFallback(t *testing.T) {
	a := NewAuthenticator("secret", false)

	r := httptest.NewRequest("GET", "/ws", nil)
	r.URL.RawQuery = "token=" + signToken(t, "secret", jwt.MapClaims{"sub": "acc_7"})

	account, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "acc_7", account)
}

func TestAuthenticate_BadSignature(t *testing.T) {
	a := NewAuthenticator("secret", true)

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", jwt.MapClaims{"account": "acc_42"}))

	_, err := a.Authenticate(r)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_GuestFallback(t *testing.T) {
	a := NewAuthenticator("secret", true)

	r := httptest.NewRequest("GET", "/ws?account=alice", nil)
	account, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "guest:alice", account)

	r = httptest.NewRequest("GET", "/ws", nil)
	account, err = a.Authenticate(r)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(account, "guest:"))
}

func TestAuthenticate_GuestDisabled(t *testing.T) {
	a := NewAuthenticator("secret", false)

	r := httptest.NewRequest("GET", "/ws", nil)
	_, err := a.Authenticate(r)
	assert.ErrorIs(t, err, ErrNoCredentials)
}
