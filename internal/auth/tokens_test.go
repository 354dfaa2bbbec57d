package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestManager(ttl time.Duration) *TokenManager {
	return NewTokenManager([]byte("test-secret"), ttl, NewMemoryRevocationStore())
}

func TestIssueAndValidate(t *testing.T) {
	m := newTestManager(30 * time.Minute)
	userID := uuid.New()

	token, err := m.Issue(userID, "admin")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims, err := m.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user %s, got %s", userID, claims.UserID)
	}
	if claims.Role != "admin" {
		t.Fatalf("expected role admin, got %s", claims.Role)
	}
	if claims.TokenID == "" {
		t.Fatal("expected a jti")
	}
	remaining := time.Until(claims.ExpiresAt)
	if remaining < 29*time.Minute || remaining > 31*time.Minute {
		t.Fatalf("unexpected expiry horizon: %v", remaining)
	}
}

func TestValidateRejectsBadTokens(t *testing.T) {
	m := newTestManager(30 * time.Minute)
	other := NewTokenManager([]byte("other-secret"), 30*time.Minute, NewMemoryRevocationStore())

	foreign, err := other.Issue(uuid.New(), "customer")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not.a.jwt"},
		{name: "wrong secret", token: foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Validate(context.Background(), tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m := newTestManager(-1 * time.Minute)
	token, err := m.Issue(uuid.New(), "customer")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := m.Validate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestRevokedTokenIsRejected(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(30 * time.Minute)

	token, err := m.Issue(uuid.New(), "employee")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	claims, err := m.Validate(ctx, token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if err := m.Revoke(ctx, claims); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := m.Validate(ctx, token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestMemoryRevocationSweep(t *testing.T) {
	store := NewMemoryRevocationStore()
	if err := store.Revoke(context.Background(), "stale", 5*time.Millisecond); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	time.Sleep(15 * time.Millisecond)

	revoked, err := store.IsRevoked(context.Background(), "stale")
	if err != nil {
		t.Fatalf("isrevoked failed: %v", err)
	}
	if revoked {
		t.Fatal("expired entry still reported revoked")
	}
	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected sweep to remove 1, removed %d", removed)
	}
}
