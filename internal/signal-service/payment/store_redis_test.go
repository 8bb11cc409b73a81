package payment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisPending(t *testing.T) {
	ctx := context.Background()
	store := NewRedisPending(newRedis(t), 24*time.Hour)
	opened := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	p := PendingPayment{
		LinkID: "link-1", ExternalID: "ext-1", UserID: "42", Kind: "week",
		AmountDue: decimal.NewFromInt(650), Currency: "RUB", CreatedAt: opened,
	}
	if err := store.Put(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := store.ByExternalID(ctx, "ext-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.LinkID != "link-1" || !got.AmountDue.Equal(p.AmountDue) || !got.CreatedAt.Equal(opened) {
		t.Errorf("got %+v", got)
	}
	if _, err := store.ByLinkID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}

	n, err := store.DeleteCreatedBefore(ctx, opened.Add(23*time.Hour).Add(-24*time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("+23h sweep: n=%d err=%v", n, err)
	}
	n, err = store.DeleteCreatedBefore(ctx, opened.Add(25*time.Hour).Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("+25h sweep: n=%d err=%v", n, err)
	}
	if _, err := store.ByExternalID(ctx, "ext-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after sweep err = %v", err)
	}
}

func TestRedisPendingSettle(t *testing.T) {
	ctx := context.Background()
	store := NewRedisPending(newRedis(t), 24*time.Hour)

	p := PendingPayment{
		LinkID: "link-2", ExternalID: "ext-2", UserID: "42", Kind: "week",
		AmountDue: decimal.NewFromInt(650), CreatedAt: time.Now(),
	}
	if err := store.Put(ctx, p); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SettledExternalID(ctx, "link-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("open link reported settled: %v", err)
	}

	if err := store.Settle(ctx, p); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ByLinkID(ctx, "link-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("pending entry survived settle: %v", err)
	}
	if _, err := store.ByExternalID(ctx, "ext-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("external index survived settle: %v", err)
	}
	ext, err := store.SettledExternalID(ctx, "link-2")
	if err != nil || ext != "ext-2" {
		t.Errorf("settled = %q, %v", ext, err)
	}
	if n, _ := store.DeleteCreatedBefore(ctx, time.Now().Add(time.Hour)); n != 0 {
		t.Errorf("sweep counted settled link: %d", n)
	}
}

func TestRedisLockerExcludes(t *testing.T) {
	locker := NewRedisLocker(newRedis(t), 5*time.Second)
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "ext-1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside.Load() != 1 {
		t.Errorf("max holders = %d, want 1", maxInside.Load())
	}
}

func TestRedisLockerHonoursContext(t *testing.T) {
	locker := NewRedisLocker(newRedis(t), 5*time.Second)
	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v", err)
	}
}
