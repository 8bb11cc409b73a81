package discovery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/signal-service/match"
)

// MatchRecorder persists accepted matches.
type MatchRecorder interface {
	RecordMatch(ctx context.Context, m match.Match) error
}

// Deliverer fans matches out to entitled users.
type Deliverer interface {
	DeliverMatches(ctx context.Context, matches []match.Match) (int, error)
}

// Pipeline is one discovery cycle: aggregate, dedup, drop already seen, persist, deliver.
type Pipeline struct {
	Log        *zap.Logger
	Aggregator *Aggregator
	Seen       SeenStore
	Recorder   MatchRecorder
	Deliverer  Deliverer
}

// Discover aggregates all sources and deduplicates within the cycle.
func (p *Pipeline) Discover(ctx context.Context) ([]match.Match, Result) {
	res := p.Aggregator.Run(ctx)
	return match.Dedup(res.Matches), res
}

// RunCycle is the scheduled job. Source failures are not errors; storage failures are.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	unique, res := p.Discover(ctx)

	var errs []error
	fresh := make([]match.Match, 0, len(unique))
	for _, m := range unique {
		key := m.Key().String()
		if p.Seen != nil {
			isNew, err := p.Seen.MarkNew(ctx, key)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !isNew {
				continue
			}
		}
		if p.Recorder != nil {
			if err := p.Recorder.RecordMatch(ctx, m); err != nil {
				p.Log.Warn("record match failed", zap.String("key", key), zap.Error(err))
			}
		}
		fresh = append(fresh, m)
	}

	delivered := 0
	if len(fresh) > 0 && p.Deliverer != nil {
		n, err := p.Deliverer.DeliverMatches(ctx, fresh)
		if err != nil {
			errs = append(errs, fmt.Errorf("deliver matches: %w", err))
			if n == 0 {
				p.release(ctx, fresh)
			}
		}
		delivered = n
	}

	p.Log.Info("discovery cycle done",
		zap.Int("sources", len(res.Reports)),
		zap.Strings("failed_sources", res.Failed()),
		zap.Int("accepted", len(res.Matches)),
		zap.Int("unique", len(unique)),
		zap.Int("fresh", len(fresh)),
		zap.Int("delivered", delivered),
	)
	return errors.Join(errs...)
}

// release hands the keys back when nothing reached the sink, so the next cycle retries them.
func (p *Pipeline) release(ctx context.Context, ms []match.Match) {
	if p.Seen == nil {
		return
	}
	for _, m := range ms {
		key := m.Key().String()
		if err := p.Seen.Release(ctx, key); err != nil {
			p.Log.Warn("release seen key failed", zap.String("key", key), zap.Error(err))
		}
	}
}
