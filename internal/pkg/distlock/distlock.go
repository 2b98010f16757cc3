// Package distlock guards work that must run on one process at a time,
// such as the scheduler picking up a due campaign.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release or Extend when the caller no longer
// owns the lock.
var ErrNotHeld = errors.New("lock not held")

// DistLock is a single named lock. An instance belongs to one holder and
// is not meant to be shared across goroutines.
type DistLock interface {
	// Acquire tries to take the lock without blocking.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this instance still owns it.
	Release(ctx context.Context) error
}

// Factory hands out locks on the best backend available: Redis when a
// client is configured, PostgreSQL advisory locks when only a database
// is, and an in-process table otherwise.
type Factory struct {
	redis *redis.Client
	db    *sql.DB
	ttl   time.Duration
	local *localTable
}

// NewFactory creates a lock factory. Either client may be nil.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) *Factory {
	return &Factory{redis: redisClient, db: db, ttl: ttl, local: &localTable{held: map[string]struct{}{}}}
}

// Lock returns a new lock instance for key.
func (f *Factory) Lock(key string) DistLock {
	switch {
	case f.redis != nil:
		return NewRedisLock(f.redis, key, f.ttl)
	case f.db != nil:
		return NewPGAdvisoryLock(f.db, key)
	default:
		return &LocalLock{table: f.local, key: key}
	}
}

// Backend names the backend locks come from, for startup logs.
func (f *Factory) Backend() string {
	switch {
	case f.redis != nil:
		return "redis"
	case f.db != nil:
		return "postgres"
	default:
		return "local"
	}
}

// PGAdvisoryLock implements DistLock with pg_try_advisory_lock. Advisory
// locks belong to a session, so the lock pins one pooled connection from
// Acquire until Release; the lock is dropped with the connection if the
// process dies.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a stable lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, fmt.Errorf("advisory lock %d already acquired by this instance", l.lockID)
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock %d: %w", l.lockID, err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	var released bool
	if err := l.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released); err != nil {
		return fmt.Errorf("advisory unlock %d: %w", l.lockID, err)
	}
	if !released {
		return ErrNotHeld
	}
	return nil
}

type localTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// LocalLock is an in-process lock for single-instance deployments.
type LocalLock struct {
	table *localTable
	key   string
	owned bool
}

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if _, taken := l.table.held[l.key]; taken {
		return false, nil
	}
	l.table.held[l.key] = struct{}{}
	l.owned = true
	return true, nil
}

func (l *LocalLock) Release(context.Context) error {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if !l.owned {
		return ErrNotHeld
	}
	delete(l.table.held, l.key)
	l.owned = false
	return nil
}
