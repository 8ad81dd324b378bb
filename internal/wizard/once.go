package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"incident-platform/pkg/utils"
)

// OnceGuard admits the first claim on a key and rejects every later one.
// It backs the double-submission guard on the send step.
type OnceGuard interface {
	Acquire(ctx context.Context, key string) (bool, error)
}

// RedisOnceGuard claims keys via SET NX with a TTL, so abandoned claims
// expire together with their session.
type RedisOnceGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisOnceGuard(rdb *redis.Client, ttl time.Duration) *RedisOnceGuard {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisOnceGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisOnceGuard) Acquire(ctx context.Context, key string) (bool, error) {
	return utils.AcquireOnce(ctx, g.rdb, key, g.ttl)
}

// MemoryOnceGuard is the in-process fallback for single-instance deployments
// and tests. Claims never expire.
type MemoryOnceGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryOnceGuard() *MemoryOnceGuard {
	return &MemoryOnceGuard{seen: map[string]struct{}{}}
}

func (g *MemoryOnceGuard) Acquire(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return false, nil
	}
	g.seen[key] = struct{}{}
	return true, nil
}
