package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/sequence-engine/internal/pkg/distlock"
	"github.com/ignite/sequence-engine/internal/service/sequence"
)

// =============================================================================
// SEQUENCE TICKER
// =============================================================================
// Runs the scheduler on a fixed interval inside the server process. When a
// lock is set, only the replica holding it runs a given tick; the others
// skip. The HTTP trigger does not take the lock since overlapping runs are
// safe.

const (
	// DefaultTickInterval is how often the ticker runs the scheduler.
	DefaultTickInterval = time.Minute

	// LockKey names the lock shared by every replica's ticker.
	LockKey = "sequence-ticker"
)

// Runner executes one scheduler run.
type Runner interface {
	RunOnce(ctx context.Context) (sequence.Summary, error)
}

// TickerStats counts ticker activity since Start.
type TickerStats struct {
	Runs     int64 `json:"runs"`
	Locked   int64 `json:"locked"`
	Failures int64 `json:"failures"`
	Sent     int64 `json:"sent"`
}

// SequenceTicker polls the scheduler.
type SequenceTicker struct {
	runner   Runner
	lock     distlock.Lock
	interval time.Duration

	runs     int64
	locked   int64
	failures int64
	sent     int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewSequenceTicker creates a ticker. A nil lock runs every tick.
func NewSequenceTicker(runner Runner, lock distlock.Lock, interval time.Duration) *SequenceTicker {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &SequenceTicker{runner: runner, lock: lock, interval: interval}
}

// Start runs the scheduler once immediately, then on every tick.
func (t *SequenceTicker) Start() error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("sequence ticker already running")
	}
	t.running = true
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.mu.Unlock()

	log.Printf("[SequenceTicker] Starting with interval: %v", t.interval)

	t.wg.Add(1)
	go t.loop()
	return nil
}

// Stop waits for an in-flight run to finish.
func (t *SequenceTicker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	log.Printf("[SequenceTicker] Stopping...")
	t.cancel()
	t.wg.Wait()
	s := t.Stats()
	log.Printf("[SequenceTicker] Stopped. Runs: %d, Sent: %d, Failures: %d", s.Runs, s.Sent, s.Failures)
}

// Stats returns a snapshot of the counters.
func (t *SequenceTicker) Stats() TickerStats {
	return TickerStats{
		Runs:     atomic.LoadInt64(&t.runs),
		Locked:   atomic.LoadInt64(&t.locked),
		Failures: atomic.LoadInt64(&t.failures),
		Sent:     atomic.LoadInt64(&t.sent),
	}
}

func (t *SequenceTicker) loop() {
	defer t.wg.Done()

	t.tick()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// tick runs on a context detached from Stop so a run is never cut off
// between a send and its commit.
func (t *SequenceTicker) tick() {
	ctx := context.WithoutCancel(t.ctx)

	run := func(ctx context.Context) error {
		sum, err := t.runner.RunOnce(ctx)
		atomic.AddInt64(&t.runs, 1)
		atomic.AddInt64(&t.sent, int64(sum.Sent))
		return err
	}

	var err error
	if t.lock == nil {
		err = run(ctx)
	} else {
		err = distlock.TryRun(ctx, t.lock, run)
	}

	switch {
	case err == nil:
	case errors.Is(err, distlock.ErrNotHeld):
		atomic.AddInt64(&t.locked, 1)
	default:
		atomic.AddInt64(&t.failures, 1)
		log.Printf("[SequenceTicker] Run failed: %v", err)
	}
}
