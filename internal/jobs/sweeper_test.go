package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vaultbank/ledger-service/internal/store"
)

type sweepRepoStub struct {
	store.Repository
	cutoff time.Time
	swept  int64
	err    error
	calls  int
}

func (s *sweepRepoStub) SweepStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	s.calls++
	s.cutoff = olderThan
	return s.swept, s.err
}

type memorySweeperStub struct {
	calls int
}

func (m *memorySweeperStub) Sweep() int {
	m.calls++
	return 3
}

func TestRunOnce_SweepsWithMaxAgeCutoff(t *testing.T) {
	repo := &sweepRepoStub{swept: 2}
	memory := &memorySweeperStub{}
	sweeper := NewSweeper(repo, time.Minute, 15*time.Minute, memory)

	before := time.Now().Add(-15 * time.Minute)
	sweeper.runOnce()
	after := time.Now().Add(-15 * time.Minute)

	if repo.calls != 1 {
		t.Fatalf("expected one sweep call, got %d", repo.calls)
	}
	if repo.cutoff.Before(before) || repo.cutoff.After(after) {
		t.Fatalf("cutoff %v not within expected window", repo.cutoff)
	}
	if memory.calls != 1 {
		t.Fatalf("expected memory sweeper to run once, ran %d times", memory.calls)
	}
}

func TestRunOnce_ContinuesPastRepositoryError(t *testing.T) {
	repo := &sweepRepoStub{err: errors.New("db unavailable")}
	memory := &memorySweeperStub{}
	sweeper := NewSweeper(repo, time.Minute, 15*time.Minute, memory)

	sweeper.runOnce()

	if memory.calls != 1 {
		t.Fatal("memory sweep must run even when the database sweep fails")
	}
}
