package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RecentSignals keeps the last Max deliveries of each user as a capped Redis list,
// newest first. Written by the notifier, read by the API.
type RecentSignals struct {
	R   *redis.Client
	Max int64
	TTL time.Duration
}

func NewRecentSignals(r *redis.Client, limit int64, ttl time.Duration) *RecentSignals {
	return &RecentSignals{R: r, Max: limit, TTL: ttl}
}

func keyRecent(userID string) string { return "signals:recent:" + userID }

func (c *RecentSignals) Push(ctx context.Context, userID string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal recent signal: %w", err)
	}
	key := keyRecent(userID)
	_, err = c.R.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, b)
		pipe.LTrim(ctx, key, 0, c.Max-1)
		pipe.Expire(ctx, key, c.TTL)
		return nil
	})
	return err
}

// List returns up to Max raw JSON entries, newest first.
func (c *RecentSignals) List(ctx context.Context, userID string) ([]json.RawMessage, error) {
	vals, err := c.R.LRange(ctx, keyRecent(userID), 0, c.Max-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(vals))
	for _, v := range vals {
		out = append(out, json.RawMessage(v))
	}
	return out, nil
}
