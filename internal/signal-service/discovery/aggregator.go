package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/signal-service/match"
)

// SourceReport is the outcome of one source in one cycle.
type SourceReport struct {
	SourceID        string
	Items           int
	Accepted        []match.Match
	ExtractFailures int
	Err             error
	Duration        time.Duration
}

// Result is the union of all sources, in completion order, not deduplicated.
type Result struct {
	Matches []match.Match
	Reports []SourceReport
}

// Failed lists the sources that produced an error.
func (r Result) Failed() []string {
	var ids []string
	for _, rep := range r.Reports {
		if rep.Err != nil {
			ids = append(ids, rep.SourceID)
		}
	}
	return ids
}

// Aggregator runs every adapter concurrently. One source failing, timing out or
// panicking never affects the others.
type Aggregator struct {
	Log      *zap.Logger
	Adapters []Adapter
	Pairs    []match.TargetPair
	Epsilon  float64
	Timeout  time.Duration

	OnSourceFailure func(sourceID string)
	OnExtractError  func(sourceID string)
	OnAccepted      func(sourceID string, n int)
}

// Run fans out to all adapters and waits for every one of them.
func (a *Aggregator) Run(ctx context.Context) Result {
	reports := make(chan SourceReport, len(a.Adapters))

	var wg sync.WaitGroup
	for _, ad := range a.Adapters {
		wg.Add(1)
		go func(ad Adapter) {
			defer wg.Done()
			reports <- a.runOne(ctx, ad)
		}(ad)
	}

	go func() {
		wg.Wait()
		close(reports)
	}()

	var res Result
	for rep := range reports {
		res.Reports = append(res.Reports, rep)
		res.Matches = append(res.Matches, rep.Accepted...)
	}
	return res
}

func (a *Aggregator) runOne(ctx context.Context, ad Adapter) (rep SourceReport) {
	start := time.Now()
	rep.SourceID = ad.ID()
	log := a.Log.With(zap.String("source", rep.SourceID))

	defer func() {
		if r := recover(); r != nil {
			rep.Accepted = nil
			rep.Err = fmt.Errorf("%w: panic: %v", ErrSourceFailed, r)
		}
		rep.Duration = time.Since(start)
		if rep.Err != nil {
			log.Warn("source failed", zap.Error(rep.Err), zap.Duration("took", rep.Duration))
			if a.OnSourceFailure != nil {
				a.OnSourceFailure(rep.SourceID)
			}
			return
		}
		log.Info("source done",
			zap.Int("items", rep.Items),
			zap.Int("accepted", len(rep.Accepted)),
			zap.Int("extract_failures", rep.ExtractFailures),
			zap.Duration("took", rep.Duration),
		)
	}()

	sctx := ctx
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	items, err := ad.Fetch(sctx)
	if err != nil {
		if !errors.Is(err, ErrSourceFailed) {
			err = fmt.Errorf("%w: %w", ErrSourceFailed, err)
		}
		rep.Err = err
		return rep
	}
	rep.Items = len(items)

	for _, it := range items {
		m, err := ad.Extract(it)
		if err != nil {
			rep.ExtractFailures++
			log.Debug("item skipped", zap.Error(err))
			if a.OnExtractError != nil {
				a.OnExtractError(rep.SourceID)
			}
			continue
		}
		if match.Passes(m, a.Pairs, a.Epsilon) {
			rep.Accepted = append(rep.Accepted, m)
		}
	}

	if a.OnAccepted != nil && len(rep.Accepted) > 0 {
		a.OnAccepted(rep.SourceID, len(rep.Accepted))
	}
	return rep
}
