// Package session keeps the most recent priced quote for each browser session.
// Only the current result is held; a new calculation replaces it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/engineroom-pricing/internal/pricing"
)

// ErrNotFound is returned when a session has no current result.
var ErrNotFound = errors.New("session: no current result")

// Store holds one current result per session id.
type Store interface {
	Current(ctx context.Context, id string) (*pricing.Result, error)
	Save(ctx context.Context, id string, res *pricing.Result) error
	Clear(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type entry struct {
	result  *pricing.Result
	expires time.Time
}

// MemoryStore is an in-process Store with per-entry expiry.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryStore returns a store whose entries expire ttl after their last save.
// A non-positive ttl keeps entries until they are replaced or cleared.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, entries: make(map[string]entry), now: time.Now}
}

// Current returns the result saved for id.
func (s *MemoryStore) Current(_ context.Context, id string) (*pricing.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.entries, id)
		return nil, ErrNotFound
	}
	return e.result, nil
}

// Save replaces the current result for id.
func (s *MemoryStore) Save(_ context.Context, id string, res *pricing.Result) error {
	if id == "" || res == nil {
		return errors.New("session: id and result are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{result: res}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.entries[id] = e
	s.sweepLocked()
	return nil
}

// Clear drops the current result for id.
func (s *MemoryStore) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.entries)
}

func (s *MemoryStore) sweepLocked() {
	now := s.now()
	for id, e := range s.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(s.entries, id)
		}
	}
}

// RedisStore keeps results as JSON documents in Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore constructs a Redis-backed store. Keys are written as "<prefix><id>".
func NewRedisStore(client *redis.Client, ttl time.Duration, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "quote:current:"
	}
	return &RedisStore{client: client, ttl: ttl, prefix: prefix}
}

// Current loads the result saved for id.
func (s *RedisStore) Current(ctx context.Context, id string) (*pricing.Result, error) {
	if s == nil || s.client == nil || id == "" {
		return nil, ErrNotFound
	}
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var res pricing.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Save serialises res and stores it with the configured TTL.
func (s *RedisStore) Save(ctx context.Context, id string, res *pricing.Result) error {
	if id == "" || res == nil {
		return errors.New("session: id and result are required")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+id, data, s.ttl).Err()
}

// Clear deletes the stored result for id.
func (s *RedisStore) Clear(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.prefix+id).Err()
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
