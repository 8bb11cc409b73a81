package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/signal-service/entitlement"
	"github.com/radieske/football-signals/internal/signal-service/match"
	"github.com/radieske/football-signals/pkg/contracts/events"
)

type UserLister interface {
	ListActiveUsers(ctx context.Context, now time.Time) ([]entitlement.User, error)
}

type Gate interface {
	Consume(ctx context.Context, userID string) (entitlement.Decision, error)
}

// Dispatcher sends fresh matches to every subscriber the gate lets through.
type Dispatcher struct {
	Log   *zap.Logger
	Users UserLister
	Gate  Gate
	Sink  Sink
	Now   func() time.Time

	OnDelivered func(kind string)
	OnDenied    func(reason string)
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// DeliverMatches consumes one unit of quota per (user, match) before sending. Once a
// user is denied the remaining matches are skipped for that user.
func (d *Dispatcher) DeliverMatches(ctx context.Context, matches []match.Match) (int, error) {
	users, err := d.Users.ListActiveUsers(ctx, d.now())
	if err != nil {
		return 0, fmt.Errorf("list active users: %w", err)
	}

	var errs []error
	delivered := 0
	for _, u := range users {
		for _, m := range matches {
			dec, err := d.Gate.Consume(ctx, u.ID)
			if err != nil {
				errs = append(errs, err)
				break
			}
			if !dec.Allowed {
				d.Log.Debug("delivery denied", zap.String("user_id", u.ID), zap.String("reason", string(dec.Reason)))
				if d.OnDenied != nil {
					d.OnDenied(string(dec.Reason))
				}
				break
			}

			if err := d.send(ctx, u.ID, events.KindMatch, func(ev *events.SignalDelivered) { ev.Match = Payload(m) }); err != nil {
				errs = append(errs, err)
				continue
			}
			delivered++
		}
	}
	return delivered, errors.Join(errs...)
}

// NotifyExpired tells each user their subscription ended. No quota is involved.
func (d *Dispatcher) NotifyExpired(ctx context.Context, users []entitlement.User) error {
	var errs []error
	for _, u := range users {
		if err := d.send(ctx, u.ID, events.KindExpired, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendOne delivers a single match to one user without consulting the gate. The caller
// is expected to have consumed quota already.
func (d *Dispatcher) SendOne(ctx context.Context, userID string, m match.Match) error {
	return d.send(ctx, userID, events.KindMatch, func(ev *events.SignalDelivered) { ev.Match = Payload(m) })
}

func (d *Dispatcher) send(ctx context.Context, userID, kind string, fill func(*events.SignalDelivered)) error {
	ev := events.SignalDelivered{
		DeliveryID: uuid.NewString(),
		UserID:     userID,
		Kind:       kind,
		Ts:         d.now(),
	}
	if fill != nil {
		fill(&ev)
	}
	if err := d.Sink.Send(ctx, ev); err != nil {
		d.Log.Warn("send failed", zap.String("user_id", userID), zap.String("kind", kind), zap.Error(err))
		return fmt.Errorf("send %s to %s: %w", kind, userID, err)
	}
	if d.OnDelivered != nil {
		d.OnDelivered(kind)
	}
	return nil
}
