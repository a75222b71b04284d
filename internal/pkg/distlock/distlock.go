// Package distlock coordinates periodic work across replicas. Redis is the
// preferred backend; PostgreSQL advisory locks are the fallback when no
// Redis is configured.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by TryRun when another holder owns the lock.
var ErrNotHeld = errors.New("lock held elsewhere")

// Lock is a non-blocking mutual-exclusion primitive. A single Lock value is
// meant for one goroutine; create one per worker.
type Lock interface {
	// TryLock reports whether the lock was acquired.
	TryLock(ctx context.Context) (bool, error)
	// Unlock releases the lock if this holder still owns it.
	Unlock(ctx context.Context) error
}

// New picks the Redis backend when rdb is non-nil, otherwise Postgres.
func New(rdb *redis.Client, db *sql.DB, key string, ttl time.Duration) Lock {
	if rdb != nil {
		return NewRedisLock(rdb, key, ttl)
	}
	return NewAdvisoryLock(db, key)
}

// TryRun executes fn only if l can be acquired, and releases the lock
// afterwards. It returns ErrNotHeld when the lock is busy.
func TryRun(ctx context.Context, l Lock, fn func(context.Context) error) error {
	ok, err := l.TryLock(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotHeld
	}
	defer l.Unlock(context.WithoutCancel(ctx))
	return fn(ctx)
}
