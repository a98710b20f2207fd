package ratelimit

import (
	"context"
	"sync"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Memory is a process-local fixed-window limiter for deployments without
// Redis. One ulule limiter is kept per Rate.
type Memory struct {
	mu       sync.Mutex
	store    limiter.Store
	limiters map[Rate]*limiter.Limiter
}

// NewMemory returns an in-memory limiter.
func NewMemory() *Memory {
	return &Memory{
		store:    memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: "submit", CleanUpInterval: time.Minute}),
		limiters: make(map[Rate]*limiter.Limiter),
	}
}

// Allow counts an event for key.
func (m *Memory) Allow(ctx context.Context, key string, rate Rate) (Decision, error) {
	if rate.Disabled() {
		return Decision{Allowed: true, Remaining: rate.Max, Reset: time.Now().Add(rate.Window)}, nil
	}
	lctx, err := m.limiterFor(rate).Get(ctx, key)
	if err != nil {
		return Decision{Reset: time.Now().Add(rate.Window)}, err
	}
	return Decision{Allowed: !lctx.Reached, Remaining: int(lctx.Remaining), Reset: time.Unix(lctx.Reset, 0)}, nil
}

func (m *Memory) limiterFor(rate Rate) *limiter.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[rate]
	if !ok {
		l = limiter.New(m.store, limiter.Rate{Period: rate.Window, Limit: int64(rate.Max)})
		m.limiters[rate] = l
	}
	return l
}
