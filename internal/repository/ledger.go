package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger records consumed credential ids so each credential verifies once.
type Ledger interface {
	// Consume marks jti as used for ttl.  It returns false when jti was
	// already consumed.
	Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	// Release forgets jti so it can be consumed again.
	Release(ctx context.Context, jti string) error
}

// RedisLedger uses SET NX with the credential's remaining lifetime, so
// entries vanish once the credential could no longer verify anyway.
type RedisLedger struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLedger(rdb *redis.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "qr"
	}
	return &RedisLedger{rdb: rdb, prefix: prefix + ":jti:"}
}

func (l *RedisLedger) Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	return l.rdb.SetNX(ctx, l.prefix+jti, 1, ttl).Result()
}

func (l *RedisLedger) Release(ctx context.Context, jti string) error {
	return l.rdb.Del(ctx, l.prefix+jti).Err()
}

// MemoryLedger is the in-process fallback.
type MemoryLedger struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{used: map[string]time.Time{}, now: time.Now}
}

func (l *MemoryLedger) Consume(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, exp := range l.used {
		if now.After(exp) {
			delete(l.used, k)
		}
	}
	if _, ok := l.used[jti]; ok {
		return false, nil
	}
	l.used[jti] = now.Add(ttl)
	return true, nil
}

func (l *MemoryLedger) Release(_ context.Context, jti string) error {
	l.mu.Lock()
	delete(l.used, jti)
	l.mu.Unlock()
	return nil
}
