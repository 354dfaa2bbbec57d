/**
 * @description
 * This file implements the revocation store for logged-out tokens. Entries
 * live exactly as long as the token they revoke, so pruning is delegated to
 * the store's own expiry instead of a sweep on the hot auth path.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: shared revocation set across instances.
 */

package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore tracks revoked token ids until their natural expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevocationStore stores revoked jtis with a TTL equal to the remaining
// token life. Redis expiry prunes them, so no sweep runs per auth check.
type RedisRevocationStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRevocationStore(client redis.UniversalClient, prefix string) *RedisRevocationStore {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "vaultbank:revoked"
	}
	return &RedisRevocationStore{client: client, prefix: trimmed}
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+":"+tokenID, "1", ttl).Err()
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+":"+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocationStore is the in-process equivalent for tests and
// single-node development.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{entries: make(map[string]time.Time)}
}

func (s *MemoryRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[tokenID] = time.Now().Add(ttl)
	s.mu.Unlock()
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	expiry, ok := s.entries[tokenID]
	s.mu.RUnlock()
	return ok && time.Now().Before(expiry), nil
}

// Sweep drops expired entries. Wired into the background jobs, not the
// request path.
func (s *MemoryRevocationStore) Sweep() int {
	now := time.Now()
	removed := 0
	s.mu.Lock()
	for id, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, id)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}
