/**
 * @description
 * This file implements session token issuance and validation. Tokens are
 * HS256 JWTs carrying the user id (sub), role, and a jti used by the
 * revocation store. Expiry is short (30 minutes by default) because payload
 * keys negotiated for the session expire on the same horizon.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: JWT signing and parsing.
 * - github.com/google/uuid: jti generation.
 */

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken covers malformed, mis-signed, and expired tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned when a token's jti is in the revocation store.
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims is the validated content of a session token.
type Claims struct {
	UserID    uuid.UUID
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// TokenManager issues and validates session tokens against a revocation store.
type TokenManager struct {
	secret     []byte
	ttl        time.Duration
	revocation RevocationStore
}

// NewTokenManager creates a token manager. revocation may not be nil; use
// NewMemoryRevocationStore for tests.
func NewTokenManager(secret []byte, ttl time.Duration, revocation RevocationStore) *TokenManager {
	return &TokenManager{secret: secret, ttl: ttl, revocation: revocation}
}

// Issue creates a signed token for the user.
func (m *TokenManager) Issue(userID uuid.UUID, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(m.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("token signing failed: %w", err)
	}
	return signed, nil
}

// Validate parses the token, verifies signature and expiry, and checks the
// revocation store.
func (m *TokenManager) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := mapClaims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrInvalidToken
	}
	role, _ := mapClaims["role"].(string)
	jti, _ := mapClaims["jti"].(string)
	expFloat, _ := mapClaims["exp"].(float64)
	expiresAt := time.Unix(int64(expFloat), 0)

	if jti != "" {
		revoked, err := m.revocation.IsRevoked(ctx, jti)
		if err != nil {
			return nil, fmt.Errorf("revocation check failed: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return &Claims{UserID: userID, Role: role, TokenID: jti, ExpiresAt: expiresAt}, nil
}

// Revoke marks the token's jti revoked until its natural expiry.
func (m *TokenManager) Revoke(ctx context.Context, claims *Claims) error {
	if claims.TokenID == "" {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt)
	if ttl <= 0 {
		return nil // already expired, nothing to track
	}
	return m.revocation.Revoke(ctx, claims.TokenID, ttl)
}
