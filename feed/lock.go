package feed

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLock keeps a single runner per name across processes. Postgres
// advisory locks belong to a session, so the lock pins one pool connection
// while held.
type AdvisoryLock struct {
	pool *pgxpool.Pool
	name string
	key  int64

	mu   sync.Mutex
	conn *pgxpool.Conn
}

func NewAdvisoryLock(pool *pgxpool.Pool, name string) *AdvisoryLock {
	return &AdvisoryLock{pool: pool, name: name, key: lockHash(name)}
}

// TryAcquire reports whether this process now holds the lock. It returns true
// without a round trip if the lock is already held.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return true, nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("lock %s: acquire conn: %w", l.name, err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&acquired); err != nil {
		conn.Release()
		return false, fmt.Errorf("lock %s: acquire: %w", l.name, err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *AdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil

	var released bool
	err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", l.key).Scan(&released)
	if err != nil {
		// the session may still hold the lock; do not hand it back to the pool
		_ = conn.Conn().Close(context.Background())
		conn.Release()
		return fmt.Errorf("lock %s: release: %w", l.name, err)
	}
	conn.Release()
	return nil
}

func lockHash(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}
