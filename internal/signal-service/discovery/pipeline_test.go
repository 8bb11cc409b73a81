package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/signal-service/match"
)

type recorder struct {
	mu      sync.Mutex
	matches []match.Match
}

func (r *recorder) RecordMatch(_ context.Context, m match.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, m)
	return nil
}

type deliverer struct {
	batches [][]match.Match
	err     error
	sent    int // reported when err is set
}

func (d *deliverer) DeliverMatches(_ context.Context, ms []match.Match) (int, error) {
	d.batches = append(d.batches, ms)
	if d.err != nil {
		return d.sent, d.err
	}
	return len(ms), nil
}

type failingSeen struct{}

func (failingSeen) MarkNew(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func (failingSeen) Release(context.Context, string) error { return nil }

func TestPipelineRunCycle(t *testing.T) {
	src1 := &fakeAdapter{id: "a", items: []RawItem{
		item("Arsenal - Chelsea", "4.25", "1.22"),
		item("Arsenal - Chelsea", "4.26", "1.22"),
	}}
	src2 := &fakeAdapter{id: "b", items: []RawItem{item("Arsenal - Chelsea", "4.25", "1.22")}}

	rec := &recorder{}
	del := &deliverer{}
	p := &Pipeline{
		Log:        zap.NewNop(),
		Aggregator: newAggregator(src1, src2),
		Seen:       NewMemorySeen(24 * time.Hour),
		Recorder:   rec,
		Deliverer:  del,
	}

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(del.batches) != 1 || len(del.batches[0]) != 2 {
		t.Fatalf("first cycle deliveries = %+v", del.batches)
	}
	if len(rec.matches) != 2 {
		t.Errorf("recorded = %d, want 2", len(rec.matches))
	}

	// same observations next cycle are suppressed
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(del.batches) != 1 {
		t.Errorf("second cycle should deliver nothing, got %d batches", len(del.batches))
	}
}

func TestPipelineSeenFailureIsReported(t *testing.T) {
	p := &Pipeline{
		Log:        zap.NewNop(),
		Aggregator: newAggregator(&fakeAdapter{id: "a", items: []RawItem{item("A - B", "4.25", "1.225")}}),
		Seen:       failingSeen{},
		Deliverer:  &deliverer{},
	}

	if err := p.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error when the seen store fails")
	}
}

func TestPipelineRetriesUndeliveredMatches(t *testing.T) {
	src := &fakeAdapter{id: "a", items: []RawItem{item("A - B", "4.25", "1.225")}}
	del := &deliverer{err: errors.New("broker down")}
	p := &Pipeline{
		Log:        zap.NewNop(),
		Aggregator: newAggregator(src),
		Seen:       NewMemorySeen(24 * time.Hour),
		Deliverer:  del,
	}

	if err := p.RunCycle(context.Background()); err == nil {
		t.Fatal("expected the delivery error")
	}

	del.err = nil
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(del.batches) != 2 || len(del.batches[1]) != 1 {
		t.Fatalf("batches = %+v, want the match retried", del.batches)
	}

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(del.batches) != 2 {
		t.Errorf("delivered match came back: %d batches", len(del.batches))
	}
}

func TestPipelinePartialDeliveryKeepsSeen(t *testing.T) {
	src := &fakeAdapter{id: "a", items: []RawItem{item("A - B", "4.25", "1.225")}}
	del := &deliverer{err: errors.New("one user failed"), sent: 1}
	p := &Pipeline{
		Log:        zap.NewNop(),
		Aggregator: newAggregator(src),
		Seen:       NewMemorySeen(24 * time.Hour),
		Deliverer:  del,
	}

	_ = p.RunCycle(context.Background())
	del.err = nil
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(del.batches) != 1 {
		t.Errorf("partially delivered match was resent: %d batches", len(del.batches))
	}
}

func TestPipelineDiscoverDedups(t *testing.T) {
	src := &fakeAdapter{id: "a", items: []RawItem{
		item("A - B", "4.25", "1.225"),
		item("a - b", "4.24", "1.225"),
	}}
	p := &Pipeline{Log: zap.NewNop(), Aggregator: newAggregator(src)}

	ms, res := p.Discover(context.Background())
	if len(res.Matches) != 2 || len(ms) != 1 {
		t.Errorf("raw = %d, unique = %d", len(res.Matches), len(ms))
	}
}
