package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// MemoryLimiter is a per-process fixed window limiter used when no Redis is
// configured. Budgets are not shared between replicas.
type MemoryLimiter struct {
	store limiter.Store

	mu        sync.Mutex
	instances map[limiter.Rate]*limiter.Limiter
}

// NewMemoryLimiter constructs a MemoryLimiter with its own in-memory store.
func NewMemoryLimiter(prefix string) *MemoryLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &MemoryLimiter{
		store: memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: time.Minute,
		}),
		instances: map[limiter.Rate]*limiter.Limiter{},
	}
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	if max <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: max, ResetAt: time.Now().Add(window)}, nil
	}
	lctx, err := m.instance(window, max).Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: memory store: %w", err)
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Remaining: int(lctx.Remaining),
		ResetAt:   time.Unix(lctx.Reset, 0),
	}, nil
}

func (m *MemoryLimiter) instance(window time.Duration, max int) *limiter.Limiter {
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[rate]
	if !ok {
		inst = limiter.New(m.store, rate)
		m.instances[rate] = inst
	}
	return inst
}
