package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTokens_IssueAndVerify(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tokens, err := NewTokens("s3cret", WithClock(clockAt(now)))
	require.NoError(t, err)

	signed, err := tokens.Issue("m1", []string{"g1", "g2"}, time.Hour)
	require.NoError(t, err)

	claims, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "m1", claims.MemberID)
	assert.True(t, claims.CanAccess("g2"))
	assert.False(t, claims.CanAccess("g3"))
}

func TestTokens_VerifyRejects(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tokens, err := NewTokens("s3cret", WithClock(clockAt(now)))
	require.NoError(t, err)
	valid, err := tokens.Issue("m1", []string{"g1"}, time.Hour)
	require.NoError(t, err)

	other, err := NewTokens("other", WithClock(clockAt(now)))
	require.NoError(t, err)
	foreign, err := other.Issue("m1", []string{"g1"}, time.Hour)
	require.NoError(t, err)

	later, err := NewTokens("s3cret", WithClock(clockAt(now.Add(2*time.Hour))))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		MemberID:         "m1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		tokens *Tokens
		token  string
	}{
		{"garbage", tokens, "not-a-token"},
		{"wrong secret", tokens, foreign},
		{"expired", later, valid},
		{"missing expiry", tokens, noExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tokens.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewTokens_RequiresSecret(t *testing.T) {
	_, err := NewTokens("")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := NewContext(context.Background(), &Claims{MemberID: "m1"})
	c, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "m1", c.MemberID)
}
