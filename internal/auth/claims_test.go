package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestHintFromToken_ReadsIdentityClaims(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      "user-99",
		"user_id":  99,
		"username": "carol",
	}).SignedString([]byte("irrelevant"))
	require.NoError(t, err)

	hint, ok := HintFromToken(token)
	require.True(t, ok)
	require.Equal(t, "user-99", hint.Subject)
	require.Equal(t, int64(99), hint.UserID)
	require.Equal(t, "carol", hint.Username)
	require.Equal(t, "carol", hint.Label())
}

func TestHintFromToken_OpaqueToken(t *testing.T) {
	_, ok := HintFromToken("opaque-session-token")
	require.False(t, ok)

	_, ok = HintFromToken("a.b.c")
	require.False(t, ok)
}

func TestClaimsHint_LabelFallbacks(t *testing.T) {
	require.Equal(t, "sub-1", ClaimsHint{Subject: "sub-1", UserID: 5}.Label())
	require.Equal(t, "5", ClaimsHint{UserID: 5}.Label())
	require.Equal(t, "", ClaimsHint{}.Label())
}
