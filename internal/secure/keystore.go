/**
 * @description
 * This file defines the KeyStore, the process-external mapping from an
 * identity (user id, or email during registration) to negotiated key
 * material. Established AES keys and parked RSA private keys both live here.
 *
 * Key features:
 * - Redis-backed implementation so keys survive across horizontally scaled
 *   instances; entries carry a TTL so abandoned sessions age out.
 * - In-memory implementation with the same contract for tests and
 *   single-node development.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client for the shared store.
 */

package secure

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned when no key material exists for an identity.
var ErrKeyNotFound = errors.New("key not found")

// KeyStore maps an identity to key material. Implementations must be safe
// for concurrent use from arbitrary request-handling goroutines.
type KeyStore interface {
	Get(ctx context.Context, id string) ([]byte, error)
	Set(ctx context.Context, id string, key []byte) error
	// GetDelete atomically fetches and removes the entry. Used for
	// single-use material such as registration-flow RSA private keys.
	GetDelete(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// RedisKeyStore stores hex-encoded key material in Redis with a TTL.
type RedisKeyStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisKeyStore creates a Redis-backed key store. Entries expire after ttl.
func NewRedisKeyStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisKeyStore {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "vaultbank:keys"
	}
	return &RedisKeyStore{client: client, prefix: trimmed, ttl: ttl}
}

func (s *RedisKeyStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *RedisKeyStore) Get(ctx context.Context, id string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return hex.DecodeString(val)
}

func (s *RedisKeyStore) Set(ctx context.Context, id string, key []byte) error {
	return s.client.Set(ctx, s.key(id), hex.EncodeToString(key), s.ttl).Err()
}

func (s *RedisKeyStore) GetDelete(ctx context.Context, id string) ([]byte, error) {
	val, err := s.client.GetDel(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return hex.DecodeString(val)
}

func (s *RedisKeyStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

type memoryEntry struct {
	key       []byte
	expiresAt time.Time
}

// MemoryKeyStore is a mutex-guarded map with per-entry expiry. It exists for
// tests and single-node development; production deployments use Redis so
// keys survive restarts and coordinate across instances.
type MemoryKeyStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
}

// NewMemoryKeyStore creates an in-memory key store. A zero ttl disables expiry.
func NewMemoryKeyStore(ttl time.Duration) *MemoryKeyStore {
	return &MemoryKeyStore{entries: make(map[string]memoryEntry), ttl: ttl}
}

func (s *MemoryKeyStore) Get(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || (!entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt)) {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(entry.key))
	copy(out, entry.key)
	return out, nil
}

func (s *MemoryKeyStore) Set(ctx context.Context, id string, key []byte) error {
	stored := make([]byte, len(key))
	copy(stored, key)
	var expiresAt time.Time
	if s.ttl > 0 {
		expiresAt = time.Now().Add(s.ttl)
	}
	s.mu.Lock()
	s.entries[id] = memoryEntry{key: stored, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryKeyStore) GetDelete(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok || (!entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt)) {
		return nil, ErrKeyNotFound
	}
	return entry.key, nil
}

func (s *MemoryKeyStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// Sweep removes expired entries. Called periodically by the background jobs
// so expiry cost stays off the request path.
func (s *MemoryKeyStore) Sweep() int {
	now := time.Now()
	removed := 0
	s.mu.Lock()
	for id, entry := range s.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}
