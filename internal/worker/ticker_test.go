package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/sequence-engine/internal/pkg/distlock"
	"github.com/ignite/sequence-engine/internal/service/sequence"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls int64
	err   error
}

func (r *countingRunner) RunOnce(context.Context) (sequence.Summary, error) {
	atomic.AddInt64(&r.calls, 1)
	return sequence.Summary{Sent: 2}, r.err
}

func (r *countingRunner) count() int64 { return atomic.LoadInt64(&r.calls) }

func TestSequenceTicker_Defaults(t *testing.T) {
	ticker := NewSequenceTicker(&countingRunner{}, nil, 0)
	assert.Equal(t, DefaultTickInterval, ticker.interval)
}

func TestSequenceTicker_StartStop(t *testing.T) {
	runner := &countingRunner{}
	ticker := NewSequenceTicker(runner, nil, 5*time.Millisecond)

	require.NoError(t, ticker.Start())
	assert.Error(t, ticker.Start(), "double start")

	require.Eventually(t, func() bool { return runner.count() >= 3 }, time.Second, time.Millisecond)
	ticker.Stop()
	ticker.Stop()

	stopped := runner.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runner.count(), "no runs after Stop")

	stats := ticker.Stats()
	assert.Equal(t, stopped, stats.Runs)
	assert.Equal(t, 2*stopped, stats.Sent)
	assert.Zero(t, stats.Failures)
}

func TestSequenceTicker_RunsImmediately(t *testing.T) {
	runner := &countingRunner{}
	ticker := NewSequenceTicker(runner, nil, time.Hour)

	require.NoError(t, ticker.Start())
	defer ticker.Stop()
	require.Eventually(t, func() bool { return runner.count() == 1 }, time.Second, time.Millisecond)
}

func TestSequenceTicker_CountsFailures(t *testing.T) {
	runner := &countingRunner{err: errors.New("database unavailable")}
	ticker := NewSequenceTicker(runner, nil, time.Hour)

	ticker.ctx, ticker.cancel = context.WithCancel(context.Background())
	defer ticker.cancel()
	ticker.tick()

	assert.Equal(t, int64(1), ticker.Stats().Failures)
}

func TestSequenceTicker_SkipsWhenLockHeld(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	other := distlock.NewRedisLock(rdb, LockKey, time.Minute)
	ok, err := other.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	runner := &countingRunner{}
	ticker := NewSequenceTicker(runner, distlock.NewRedisLock(rdb, LockKey, time.Minute), time.Hour)
	ticker.ctx, ticker.cancel = context.WithCancel(context.Background())
	defer ticker.cancel()

	ticker.tick()
	assert.Zero(t, runner.count())
	assert.Equal(t, int64(1), ticker.Stats().Locked)

	require.NoError(t, other.Unlock(context.Background()))
	ticker.tick()
	assert.Equal(t, int64(1), runner.count())
	assert.False(t, mr.Exists("sequence-engine:lock:"+LockKey), "lock released after run")
}
