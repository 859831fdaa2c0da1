package service

import (
	"errors"
	"safetrain_backend/internal/util"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionToken is the time-boxed credential rendered as a QR code by
// the UI layer. Expiry is absolute from issuance; it is never extended
// or renewed, because it bounds the legal claim that training occurred
// within the window.
type SessionToken struct {
	Token     string    `json:"token"`
	SessionID string    `json:"sessionId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and checks session access tokens. Both operations
// are pure functions of their inputs plus wall-clock time; the issuer
// holds no mutable state and is safe for concurrent use.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), now: time.Now}
}

// Issue mints a token for sessionID expiring expiryMinutes from now.
// expiryMinutes must be positive; defaulting the configured value is
// the config layer's concern, not this one's.
func (t *TokenIssuer) Issue(sessionID string, expiryMinutes int) (*SessionToken, error) {
	if expiryMinutes <= 0 {
		return nil, errors.New("expiryMinutes must be positive")
	}

	issuedAt := t.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(time.Duration(expiryMinutes) * time.Minute)

	claims := &sessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, err
	}

	return &SessionToken{
		Token:     signed,
		SessionID: sessionID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate checks the token signature and freshness against the given
// instant and returns the session id it was issued for. Freshness is
// the closed-open interval [issuedAt, expiresAt): a token presented at
// exactly expiresAt is already expired.
func (t *TokenIssuer) Validate(tokenString string, now time.Time) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return now }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", util.ErrTokenExpired
		}
		return "", util.ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.SessionID == "" {
		return "", util.ErrTokenInvalid
	}

	// The expiry boundary itself counts as expired (closed-open window).
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return "", util.ErrTokenExpired
	}

	return claims.SessionID, nil
}
