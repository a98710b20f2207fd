package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rate is the number of events admitted per sliding window.
type Rate struct {
	Max    int
	Window time.Duration
}

// Disabled reports whether the rate admits everything.
func (r Rate) Disabled() bool { return r.Max <= 0 || r.Window <= 0 }

// Decision is the outcome of one Allow call. Reset is when the oldest
// admitted event leaves the window and a slot frees up.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter admits or rejects one more event for key.
type Limiter interface {
	Allow(ctx context.Context, key string, rate Rate) (Decision, error)
}

// slidingWindow trims expired entries, admits the event only while under the
// limit, and reports the admitted count and the score of the oldest entry.
// Rejected attempts are not recorded, so a client hammering the endpoint
// regains access one window after its last accepted submission.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[5])
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < max then
  redis.call('ZADD', KEYS[1], now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', KEYS[1], window)
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local reset = now + window
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// SlidingRedis is a sliding-window limiter over one Redis sorted set per key.
type SlidingRedis struct {
	Client *redis.Client
	// Prefix defaults to "ratelimit:submit:".
	Prefix string
	Now    func() time.Time
}

// Allow runs the window check atomically in Redis.
func (l SlidingRedis) Allow(ctx context.Context, key string, rate Rate) (Decision, error) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	at := now()
	if l.Client == nil || rate.Disabled() {
		return Decision{Allowed: true, Remaining: rate.Max, Reset: at.Add(rate.Window)}, nil
	}
	prefix := l.Prefix
	if prefix == "" {
		prefix = "ratelimit:submit:"
	}

	res, err := slidingWindow.Run(ctx, l.Client, []string{prefix + key},
		at.UnixMilli(), rate.Window.Milliseconds(), rate.Max, uuid.NewString(), at.Add(-rate.Window).UnixMilli()).Int64Slice()
	if err != nil {
		return Decision{Reset: at.Add(rate.Window)}, fmt.Errorf("sliding window %q: %w", key, err)
	}
	if len(res) != 3 {
		return Decision{Reset: at.Add(rate.Window)}, fmt.Errorf("sliding window %q: unexpected reply %v", key, res)
	}
	return Decision{
		Allowed:   res[0] == 1,
		Remaining: max(rate.Max-int(res[1]), 0),
		Reset:     time.UnixMilli(res[2]),
	}, nil
}
