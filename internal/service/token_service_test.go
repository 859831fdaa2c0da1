package service

import (
	"safetrain_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedIssuer(secret string, at time.Time) *TokenIssuer {
	issuer := NewTokenIssuer(secret)
	issuer.now = func() time.Time { return at }
	return issuer
}

func TestTokenIssueAndValidate(t *testing.T) {
	issued := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	issuer := fixedIssuer("test-secret", issued)

	token, err := issuer.Issue("session-1", 30)
	require.NoError(t, err)
	assert.Equal(t, "session-1", token.SessionID)
	assert.Equal(t, issued, token.IssuedAt)
	assert.Equal(t, issued.Add(30*time.Minute), token.ExpiresAt)

	sessionID, err := issuer.Validate(token.Token, issued)
	require.NoError(t, err)
	assert.Equal(t, "session-1", sessionID)
}

func TestTokenExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	issuer := fixedIssuer("test-secret", issued)

	token, err := issuer.Issue("session-1", 30)
	require.NoError(t, err)

	// One second before expiry the token is still good.
	sessionID, err := issuer.Validate(token.Token, token.ExpiresAt.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, "session-1", sessionID)

	// Exactly at expiry the token is already expired: the window is
	// closed-open.
	_, err = issuer.Validate(token.Token, token.ExpiresAt)
	assert.ErrorIs(t, err, util.ErrTokenExpired)

	_, err = issuer.Validate(token.Token, token.ExpiresAt.Add(time.Second))
	assert.ErrorIs(t, err, util.ErrTokenExpired)
}

func TestTokenTamperRejected(t *testing.T) {
	issued := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	issuer := fixedIssuer("test-secret", issued)

	token, err := issuer.Issue("session-1", 30)
	require.NoError(t, err)

	// Flip a character in the payload segment.
	raw := []byte(token.Token)
	mid := len(raw) / 2
	if raw[mid] == 'A' {
		raw[mid] = 'B'
	} else {
		raw[mid] = 'A'
	}

	_, err = issuer.Validate(string(raw), issued)
	assert.ErrorIs(t, err, util.ErrTokenInvalid)
}

func TestTokenWrongSecretRejected(t *testing.T) {
	issued := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	issuer := fixedIssuer("test-secret", issued)
	other := fixedIssuer("other-secret", issued)

	token, err := issuer.Issue("session-1", 30)
	require.NoError(t, err)

	_, err = other.Validate(token.Token, issued)
	assert.ErrorIs(t, err, util.ErrTokenInvalid)
}

func TestTokenIssueRejectsNonPositiveExpiry(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	_, err := issuer.Issue("session-1", 0)
	assert.Error(t, err)

	_, err = issuer.Issue("session-1", -5)
	assert.Error(t, err)
}

func TestTokenGarbageRejected(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	_, err := issuer.Validate("not-a-jwt", time.Now())
	assert.ErrorIs(t, err, util.ErrTokenInvalid)
}
