// Package lock serialises work on a key, such as one session's quote submission.
package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by Try when another caller holds the key.
var ErrHeld = errors.New("lock: already held")

// Locker provides a Redis-backed distributed lock.
type Locker struct {
	R      *redis.Client
	Prefix string
}

// Try executes fn while holding a lock for key. It does not wait: when the
// key is held ErrHeld is returned and fn is not called. The lock is released
// when fn returns, or after ttl if the process dies first.
func (l Locker) Try(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	key = l.Prefix + key
	token := uuid.NewString()

	ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	defer l.release(context.Background(), key, token)
	return fn(ctx)
}

func (l Locker) release(ctx context.Context, key, token string) {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := l.R.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}

// Local is the in-process counterpart of Locker for single-instance deployments.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// Try behaves like Locker.Try. ttl is ignored since the holder cannot outlive the process.
func (l *Local) Try(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]struct{})
	}
	if _, ok := l.held[key]; ok {
		l.mu.Unlock()
		return ErrHeld
	}
	l.held[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}
