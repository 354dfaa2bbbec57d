package secure

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryKeyStoreSetGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryKeyStore(0)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	key := []byte("0123456789abcdef0123456789abcdef")
	if err := store.Set(ctx, "u1", key); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != string(key) {
		t.Fatal("stored key mismatch")
	}

	// Mutating the returned slice must not affect the stored copy.
	got[0] = 'X'
	again, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if again[0] != '0' {
		t.Fatal("stored key was mutated through returned slice")
	}
}

func TestMemoryKeyStoreGetDeleteIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryKeyStore(0)

	if err := store.Set(ctx, "once", []byte("k")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, err := store.GetDelete(ctx, "once"); err != nil {
		t.Fatalf("first getdelete failed: %v", err)
	}
	if _, err := store.GetDelete(ctx, "once"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound on reuse, got %v", err)
	}
}

func TestMemoryKeyStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryKeyStore(10 * time.Millisecond)

	if err := store.Set(ctx, "ttl", []byte("k")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(25 * time.Millisecond)

	if _, err := store.Get(ctx, "ttl"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound after expiry, got %v", err)
	}
	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected sweep to remove 1 entry, removed %d", removed)
	}
}

func TestMemoryKeyStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryKeyStore(0)

	if err := store.Set(ctx, "gone", []byte("k")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "gone"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
	}
}
