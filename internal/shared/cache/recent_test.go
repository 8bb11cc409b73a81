package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRecentSignalsCapped(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	c := NewRecentSignals(rdb, 3, time.Hour)
	for i := 1; i <= 5; i++ {
		if err := c.Push(ctx, "42", map[string]int{"n": i}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := c.List(ctx, "42")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	var first map[string]int
	if err := json.Unmarshal(got[0], &first); err != nil {
		t.Fatal(err)
	}
	if first["n"] != 5 {
		t.Errorf("newest = %v, want 5", first)
	}
	if ttl := mr.TTL("signals:recent:42"); ttl != time.Hour {
		t.Errorf("ttl = %v", ttl)
	}

	empty, err := c.List(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Errorf("empty = %v, %v", empty, err)
	}
}
