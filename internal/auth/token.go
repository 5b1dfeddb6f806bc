package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sentra-auth/sentra/internal/shared"
)

// DefaultTokenTTL is the fixed validity window of an issued token.
const DefaultTokenTTL = 2 * time.Hour

// TokenCodec mints and verifies signed session tokens. A token carries only
// the principal identifier; roles and permissions are never trusted from
// token claims. The signing key is injected at construction so tests can
// run with distinct keys.
type TokenCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenCodec constructs a codec for the given signing secret. A
// non-positive ttl falls back to DefaultTokenTTL.
func NewTokenCodec(secret string, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{key: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns the validity window of issued tokens.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue produces a signed token for the principal with an expiry claim.
func (c *TokenCodec) Issue(principalID int64) (string, time.Time, error) {
	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(principalID, 10),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks signature and expiry and extracts the principal identifier.
func (c *TokenCodec) Verify(token string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return c.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, shared.ErrExpiredToken
		}
		return 0, shared.ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return 0, shared.ErrInvalidToken
	}
	principalID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || principalID <= 0 {
		return 0, shared.ErrInvalidToken
	}
	return principalID, nil
}
