package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/signal-service/repo"
	"github.com/radieske/football-signals/pkg/contracts/events"
)

type StatsSource interface {
	Stats(ctx context.Context, now time.Time) (repo.Stats, error)
}

type AdminLister interface {
	ListAdmins(ctx context.Context) ([]string, error)
}

// WeekMarker claims a week once. The discovery seen store satisfies it.
type WeekMarker interface {
	MarkNew(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Reporter sends the weekly statistics to every admin on Monday from 09:00 local time.
type Reporter struct {
	Log      *zap.Logger
	Stats    StatsSource
	Admins   AdminLister
	Sink     Sink
	Marker   WeekMarker // optional, shares the claim between replicas and restarts
	Location *time.Location
	Now      func() time.Time

	mu       sync.Mutex
	lastWeek string
}

const reportHour = 9

// Week returns the ISO week label, e.g. "2024-W24".
func Week(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}

func (r *Reporter) local() time.Time {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	if r.Location != nil {
		now = now.In(r.Location)
	}
	return now
}

// Due reports whether the report for now's week should go out.
func Due(now time.Time) bool {
	return now.Weekday() == time.Monday && now.Hour() >= reportHour
}

// RunIfDue is the scheduled job. It sends at most once per ISO week.
func (r *Reporter) RunIfDue(ctx context.Context) error {
	now := r.local()
	if !Due(now) {
		return nil
	}
	week := Week(now)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastWeek == week {
		return nil
	}
	key := "report:" + week
	if r.Marker != nil {
		first, err := r.Marker.MarkNew(ctx, key)
		if err != nil {
			return fmt.Errorf("claim report week: %w", err)
		}
		if !first {
			r.lastWeek = week
			return nil
		}
	}

	if err := r.Send(ctx, now); err != nil {
		// give the week back so the next tick retries
		if r.Marker != nil {
			if rerr := r.Marker.Release(ctx, key); rerr != nil {
				r.Log.Warn("release report week failed", zap.String("week", week), zap.Error(rerr))
			}
		}
		return err
	}
	r.lastWeek = week
	r.Log.Info("weekly report sent", zap.String("week", week))
	return nil
}

// Send publishes the statistics to all admins right away.
func (r *Reporter) Send(ctx context.Context, now time.Time) error {
	s, err := r.Stats.Stats(ctx, now)
	if err != nil {
		return fmt.Errorf("weekly stats: %w", err)
	}
	admins, err := r.Admins.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}

	report := &events.ReportPayload{
		ActiveUsers:     s.ActiveUsers,
		InactiveUsers:   s.InactiveUsers,
		WeeklyPurchases: s.WeeklyPurchases,
		PopularPlan:     s.PopularPlan,
	}

	var errs []error
	for _, id := range admins {
		ev := events.SignalDelivered{
			DeliveryID: uuid.NewString(),
			UserID:     id,
			Kind:       events.KindReport,
			Report:     report,
			Ts:         now,
		}
		if err := r.Sink.Send(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("report to %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
