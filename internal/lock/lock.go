// Package lock provides the short-lived mutual exclusion used for
// conversation turns and reminder dispatcher runs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/ResellerBot/internal/util"
)

var (
	// ErrNotAcquired is returned when the key is held by someone else.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrNotHeld is returned when releasing a lock that expired or was taken over.
	ErrNotHeld = errors.New("lock not held")
)

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker acquires locks by key. A lock that is never released expires
// after ttl.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// SessionKey is the lock key for one conversation.
func SessionKey(tenantID, userID string) string {
	return fmt.Sprintf("session:%s:%s", tenantID, userID)
}

// DispatchKey is the lock key for reminder dispatcher runs.
const DispatchKey = "reminders:dispatch"

// WithLock runs fn while holding key.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func() error) error {
	held, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		if err := held.Release(ctx); err != nil {
			slog.Warn("lock release failed", "key", key, "error", err)
		}
	}()
	return fn()
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLocker implements Locker with SET NX and a token-checked release.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisLocker creates a locker on rdb. Keys are stored under prefix.
func NewRedisLocker(rdb redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "resellerbot:lock:"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	fullKey := l.prefix + key
	token := util.GenerateRandomHex(32)
	ok, err := l.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		slog.Error("RedisLocker SETNX failed", "error", err, "key", fullKey)
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		slog.Debug("RedisLocker key busy", "key", fullKey)
		return nil, ErrNotAcquired
	}
	slog.Debug("RedisLocker acquired", "key", fullKey, "ttl", ttl)
	return &redisLock{rdb: l.rdb, key: fullKey, token: token}, nil
}

type redisLock struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

func (r *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, r.rdb, []string{r.key}, r.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", r.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	slog.Debug("RedisLocker released", "key", r.key)
	return nil
}

// LocalLocker implements Locker inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	clock func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), clock: time.Now}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrNotAcquired
	}
	token := util.GenerateRandomHex(16)
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLock{owner: l, key: key, token: token}, nil
}

type localLock struct {
	owner *LocalLocker
	key   string
	token string
}

func (r *localLock) Release(ctx context.Context) error {
	r.owner.mu.Lock()
	defer r.owner.mu.Unlock()
	e, ok := r.owner.held[r.key]
	if !ok || e.token != r.token {
		return ErrNotHeld
	}
	delete(r.owner.held, r.key)
	return nil
}
