// Package distlock provides per-key mutual exclusion that holds across
// processes (Redis, PostgreSQL advisory locks) or within one process when no
// shared backend is configured.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/referral-tracker/internal/pkg/logger"
)

// DistLock is the interface for distributed locking.
// A DistLock instance guards one key and is used from a single goroutine;
// concurrent callers each obtain their own instance from a Factory.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Factory builds a lock for key. ttl bounds how long a crashed holder can
// keep the key; backends without expiry ignore it.
type Factory func(key string, ttl time.Duration) DistLock

// NewFactory picks the best available backend.
// Redis is preferred for cross-host locking, then PostgreSQL advisory locks,
// then a process-local lock table.
func NewFactory(redisClient *redis.Client, db *sql.DB) Factory {
	switch {
	case redisClient != nil:
		return func(key string, ttl time.Duration) DistLock {
			return NewRedisLock(redisClient, key, ttl)
		}
	case db != nil:
		return func(key string, _ time.Duration) DistLock {
			return NewPGAdvisoryLock(db, key)
		}
	default:
		table := NewLocalTable()
		return func(key string, _ time.Duration) DistLock {
			return table.Lock(key)
		}
	}
}

// Extender is implemented by locks whose expiry can be pushed out while held.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// KeepAlive extends lock to ttl every interval until the returned stop func
// is called. Locks without an expiry get a no-op. The loop ends early if an
// extension fails, since the lock is then no longer ours.
func KeepAlive(ctx context.Context, lock DistLock, ttl, every time.Duration) (stop func()) {
	ext, ok := lock.(Extender)
	if !ok || ttl <= 0 || every <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ext.Extend(ctx, ttl); err != nil {
					if ctx.Err() == nil {
						logger.Warn("lock keepalive stopped", "error", err)
					}
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// =============================================================================
// PostgreSQL Advisory Lock
// =============================================================================
// pg_try_advisory_lock is session-scoped, so the lock pins one connection from
// the pool between Acquire and Release. The lock is released automatically if
// that connection drops.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to take the advisory lock on a dedicated connection.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, errors.New("distlock: advisory lock already held by this instance")
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the pinned connection and returns it to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	closeErr := l.conn.Close()
	l.conn = nil
	return errors.Join(err, closeErr)
}

// =============================================================================
// Process-local lock table
// =============================================================================

// LocalTable hands out locks that exclude each other within one process.
type LocalTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalTable creates an empty lock table.
func NewLocalTable() *LocalTable {
	return &LocalTable{held: make(map[string]struct{})}
}

// Lock returns a lock for key backed by this table.
func (t *LocalTable) Lock(key string) *LocalLock {
	return &LocalLock{table: t, key: key}
}

// LocalLock implements DistLock against a LocalTable.
type LocalLock struct {
	table *LocalTable
	key   string
	owned bool
}

// Acquire marks the key held. Returns false if another instance holds it.
func (l *LocalLock) Acquire(_ context.Context) (bool, error) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if l.owned {
		return true, nil
	}
	if _, taken := l.table.held[l.key]; taken {
		return false, nil
	}
	l.table.held[l.key] = struct{}{}
	l.owned = true
	return true, nil
}

// Release frees the key if this instance holds it.
func (l *LocalLock) Release(_ context.Context) error {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if l.owned {
		delete(l.table.held, l.key)
		l.owned = false
	}
	return nil
}
