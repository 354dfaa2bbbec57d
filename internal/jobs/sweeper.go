/**
 * @description
 * Background maintenance jobs. The sweeper periodically flips stale Pending
 * ledger rows to Failed so no row is stuck mid-lifecycle after a crash, and
 * prunes expired entries from any in-memory key or revocation stores.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Job scheduling.
 * - internal/store: SweepStalePending.
 */

package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vaultbank/ledger-service/internal/store"
)

// MemorySweeper prunes expired entries and reports how many were removed.
// The in-memory key store and revocation store both satisfy it.
type MemorySweeper interface {
	Sweep() int
}

// Sweeper owns the cron scheduler and the maintenance jobs.
type Sweeper struct {
	cron     *cron.Cron
	repo     store.Repository
	interval time.Duration
	maxAge   time.Duration
	memory   []MemorySweeper
}

// NewSweeper creates a sweeper flipping Pending rows older than maxAge to
// Failed every interval. Memory sweepers are optional.
func NewSweeper(repo store.Repository, interval, maxAge time.Duration, memory ...MemorySweeper) *Sweeper {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Sweeper{
		cron:     c,
		repo:     repo,
		interval: interval,
		maxAge:   maxAge,
		memory:   memory,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return fmt.Errorf("failed to schedule pending sweep: %w", err)
	}
	s.cron.Start()
	log.Printf("level=info component=sweeper msg=\"scheduled pending sweep\" interval=%s max_age=%s", s.interval, s.maxAge)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.maxAge)
	swept, err := s.repo.SweepStalePending(ctx, cutoff)
	if err != nil {
		log.Printf("level=error component=sweeper msg=\"pending sweep failed\" err=%v", err)
	} else if swept > 0 {
		log.Printf("level=info component=sweeper msg=\"flipped stale pending rows to failed\" count=%d cutoff=%s", swept, cutoff.UTC().Format(time.RFC3339))
	}

	for _, m := range s.memory {
		if removed := m.Sweep(); removed > 0 {
			log.Printf("level=info component=sweeper msg=\"pruned expired in-memory entries\" count=%d", removed)
		}
	}
}
