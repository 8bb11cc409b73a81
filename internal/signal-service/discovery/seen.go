package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenStore remembers match keys across cycles so a match is pushed once.
type SeenStore interface {
	// MarkNew records key and reports whether it was not seen within the TTL.
	MarkNew(ctx context.Context, key string) (bool, error)
	// Release forgets key so the next MarkNew claims it again.
	Release(ctx context.Context, key string) error
}

// RedisSeen keeps keys as "signals:seen:{key}" with a TTL.
type RedisSeen struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSeen(client *redis.Client, ttl time.Duration) *RedisSeen {
	return &RedisSeen{client: client, ttl: ttl}
}

func (s *RedisSeen) MarkNew(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, "signals:seen:"+key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set seen key: %w", err)
	}
	return ok, nil
}

func (s *RedisSeen) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, "signals:seen:"+key).Err(); err != nil {
		return fmt.Errorf("release seen key: %w", err)
	}
	return nil
}

// MemorySeen is the single-process variant.
type MemorySeen struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemorySeen(ttl time.Duration) *MemorySeen {
	return &MemorySeen{ttl: ttl, keys: make(map[string]time.Time), now: time.Now}
}

func (s *MemorySeen) MarkNew(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.keys {
		if now.After(exp) {
			delete(s.keys, k)
		}
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = now.Add(s.ttl)
	return true, nil
}

func (s *MemorySeen) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
