package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingPrefix  = "payments:pending:"
	pendingExtKey  = "payments:pending:ext:"
	pendingByTime  = "payments:pending:created"
	pendingDoneKey = "payments:pending:done:"
	pendingKeepTTL = time.Hour // extra life past the sweep ttl, in case the sweep stops
)

// RedisPending keeps pending payments across restarts. Each entry is a JSON string keyed
// by link id, plus an index by external id and a sorted set by creation time for the sweep.
type RedisPending struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPending(rdb *redis.Client, ttl time.Duration) *RedisPending {
	return &RedisPending{rdb: rdb, ttl: ttl}
}

func (r *RedisPending) Put(ctx context.Context, p PendingPayment) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending payment: %w", err)
	}
	expiry := r.ttl + pendingKeepTTL
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, pendingPrefix+p.LinkID, b, expiry)
		pipe.Set(ctx, pendingExtKey+p.ExternalID, p.LinkID, expiry)
		pipe.ZAdd(ctx, pendingByTime, redis.Z{Score: float64(p.CreatedAt.UnixMilli()), Member: p.LinkID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store pending payment %s: %w", p.LinkID, err)
	}
	return nil
}

func (r *RedisPending) ByExternalID(ctx context.Context, externalID string) (PendingPayment, error) {
	link, err := r.rdb.Get(ctx, pendingExtKey+externalID).Result()
	if errors.Is(err, redis.Nil) {
		return PendingPayment{}, ErrNotFound
	}
	if err != nil {
		return PendingPayment{}, fmt.Errorf("lookup pending payment by external id: %w", err)
	}
	return r.ByLinkID(ctx, link)
}

func (r *RedisPending) ByLinkID(ctx context.Context, linkID string) (PendingPayment, error) {
	raw, err := r.rdb.Get(ctx, pendingPrefix+linkID).Bytes()
	if errors.Is(err, redis.Nil) {
		return PendingPayment{}, ErrNotFound
	}
	if err != nil {
		return PendingPayment{}, fmt.Errorf("get pending payment %s: %w", linkID, err)
	}
	var p PendingPayment
	if err := json.Unmarshal(raw, &p); err != nil {
		return PendingPayment{}, fmt.Errorf("decode pending payment %s: %w", linkID, err)
	}
	return p, nil
}

func (r *RedisPending) Delete(ctx context.Context, p PendingPayment) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, pendingPrefix+p.LinkID, pendingExtKey+p.ExternalID)
		pipe.ZRem(ctx, pendingByTime, p.LinkID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete pending payment %s: %w", p.LinkID, err)
	}
	return nil
}

// Settle swaps the entry for a "done" key holding the external id. The key lives as long
// as the pending entry would have.
func (r *RedisPending) Settle(ctx context.Context, p PendingPayment) error {
	expiry := time.Until(p.CreatedAt.Add(r.ttl + pendingKeepTTL))
	if expiry <= 0 {
		expiry = pendingKeepTTL
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, pendingPrefix+p.LinkID, pendingExtKey+p.ExternalID)
		pipe.ZRem(ctx, pendingByTime, p.LinkID)
		pipe.Set(ctx, pendingDoneKey+p.LinkID, p.ExternalID, expiry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("settle pending payment %s: %w", p.LinkID, err)
	}
	return nil
}

func (r *RedisPending) SettledExternalID(ctx context.Context, linkID string) (string, error) {
	ext, err := r.rdb.Get(ctx, pendingDoneKey+linkID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get settled payment %s: %w", linkID, err)
	}
	return ext, nil
}

func (r *RedisPending) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	links, err := r.rdb.ZRangeByScore(ctx, pendingByTime, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list expired pending payments: %w", err)
	}

	n := 0
	for _, link := range links {
		p, err := r.ByLinkID(ctx, link)
		switch {
		case errors.Is(err, ErrNotFound):
			// key already expired, only the index entry is left
			r.rdb.ZRem(ctx, pendingByTime, link)
			continue
		case err != nil:
			return n, err
		}
		if err := r.Delete(ctx, p); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
