package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
)

// AdvisoryLock uses pg_try_advisory_lock. Advisory locks are session
// scoped, so the lock is pinned to one pooled connection until Unlock and
// vanishes if that connection drops.
type AdvisoryLock struct {
	db   *sql.DB
	id   int64
	conn *sql.Conn
}

// NewAdvisoryLock derives a stable 64-bit lock id from key.
func NewAdvisoryLock(db *sql.DB, key string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte("sequence-engine:" + key))
	return &AdvisoryLock{db: db, id: int64(h.Sum64())}
}

func (l *AdvisoryLock) TryLock(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.id).Scan(&ok); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	if !ok {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *AdvisoryLock) Unlock(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.id); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
