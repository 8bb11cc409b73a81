package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/football-signals/pkg/contracts/events"
)

// StatusChecker is the poll side of the provider.
type StatusChecker interface {
	DonationStatus(ctx context.Context, externalID string) (Donation, error)
}

// CreditPublisher announces credited payments. Optional.
type CreditPublisher interface {
	PublishCredited(ctx context.Context, ev events.PaymentCredited) error
}

// Reconciler turns pending links into credited subscriptions, exactly once, whichever
// channel reports the payment first.
type Reconciler struct {
	Catalog   *Catalog
	Pending   PendingStore
	Store     Store
	Locker    Locker
	Provider  StatusChecker
	Publisher CreditPublisher
	Log       *zap.Logger

	BaseURL    string // payment page base, the link id is appended
	PendingTTL time.Duration
	Now        func() time.Time

	// OnConfirm receives the channel and outcome of every confirmation attempt.
	OnConfirm func(channel, outcome string)
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Open issues a payment link for kind.
func (r *Reconciler) Open(ctx context.Context, userID, kind string) (PendingPayment, error) {
	plan, err := r.Catalog.Plan(kind)
	if err != nil {
		return PendingPayment{}, err
	}

	now := r.now()
	link := uuid.NewString()
	p := PendingPayment{
		LinkID:     link,
		ExternalID: fmt.Sprintf("user_%s_%s_%s_%s", userID, kind, now.Format("20060102_150405"), link[:8]),
		UserID:     userID,
		Kind:       kind,
		AmountDue:  plan.Price,
		Currency:   plan.Currency,
		PaymentURL: strings.TrimRight(r.BaseURL, "/") + "/" + link,
		CreatedAt:  now,
	}
	if err := r.Pending.Put(ctx, p); err != nil {
		return PendingPayment{}, err
	}

	r.Log.Info("payment link issued",
		zap.String("user_id", userID), zap.String("kind", kind),
		zap.String("external_id", p.ExternalID), zap.String("amount", p.AmountDue.String()))
	return p, nil
}

// Confirm credits the pending payment behind externalID. It is the push channel entry
// point; Check uses the same path.
func (r *Reconciler) Confirm(ctx context.Context, externalID string, paid decimal.Decimal) (Credit, error) {
	return r.confirm(ctx, ChannelPush, externalID, paid)
}

func (r *Reconciler) confirm(ctx context.Context, channel, externalID string, paid decimal.Decimal) (Credit, error) {
	c, err := r.credit(ctx, channel, externalID, paid)
	if r.OnConfirm != nil {
		r.OnConfirm(channel, outcome(err))
	}
	return c, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "credited"
	case errors.Is(err, ErrAlreadyConfirmed):
		return "duplicate"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientAmount):
		return "insufficient"
	}
	return "error"
}

func (r *Reconciler) credit(ctx context.Context, channel, externalID string, paid decimal.Decimal) (Credit, error) {
	log := r.Log.With(zap.String("external_id", externalID), zap.String("channel", channel))

	unlock, err := r.Locker.Lock(ctx, externalID)
	if err != nil {
		return Credit{}, err
	}
	defer unlock()

	done, err := r.Store.HasConfirmedPayment(ctx, externalID)
	if err != nil {
		return Credit{}, fmt.Errorf("check confirmed payment: %w", err)
	}
	if done {
		log.Info("payment already confirmed")
		return Credit{}, ErrAlreadyConfirmed
	}

	p, err := r.Pending.ByExternalID(ctx, externalID)
	if err != nil {
		return Credit{}, err
	}

	if paid.LessThan(p.AmountDue) {
		log.Warn("insufficient amount", zap.String("paid", paid.String()), zap.String("due", p.AmountDue.String()))
		return Credit{}, fmt.Errorf("%w: paid %s, due %s", ErrInsufficientAmount, paid, p.AmountDue)
	}

	plan, err := r.Catalog.Plan(p.Kind)
	if err != nil {
		return Credit{}, err
	}

	cp := ConfirmedPayment{
		UserID:      p.UserID,
		Kind:        p.Kind,
		Amount:      paid,
		Currency:    p.Currency,
		ExternalID:  externalID,
		ConfirmedAt: r.now(),
	}
	u, err := r.Store.CreditPayment(ctx, cp, plan.Days)
	if errors.Is(err, ErrAlreadyConfirmed) {
		r.forget(ctx, p, log)
		return Credit{}, ErrAlreadyConfirmed
	}
	if err != nil {
		return Credit{}, fmt.Errorf("credit payment: %w", err)
	}
	r.forget(ctx, p, log)

	log.Info("payment credited", zap.String("user_id", p.UserID), zap.String("kind", p.Kind), zap.String("amount", paid.String()))

	if r.Publisher != nil {
		ev := events.PaymentCredited{
			ExternalID: externalID,
			UserID:     p.UserID,
			Kind:       p.Kind,
			Amount:     paid.String(),
			Channel:    channel,
			Ts:         cp.ConfirmedAt,
		}
		if u.SubscriptionEnd != nil {
			ev.SubscriptionEnd = *u.SubscriptionEnd
		}
		if err := r.Publisher.PublishCredited(ctx, ev); err != nil {
			log.Error("failed to publish payment credited", zap.Error(err))
		}
	}

	return Credit{Payment: cp, User: u, Channel: channel}, nil
}

func (r *Reconciler) forget(ctx context.Context, p PendingPayment, log *zap.Logger) {
	if err := r.Pending.Settle(ctx, p); err != nil {
		log.Warn("failed to settle pending payment", zap.String("link_id", p.LinkID), zap.Error(err))
	}
}

// Check is the poll channel: it asks the provider about the link and credits when paid.
func (r *Reconciler) Check(ctx context.Context, linkID string) (Credit, error) {
	p, err := r.Pending.ByLinkID(ctx, linkID)
	if errors.Is(err, ErrNotFound) {
		// already credited through the other channel: resolve on the same identity
		ext, serr := r.Pending.SettledExternalID(ctx, linkID)
		if serr != nil {
			return Credit{}, err
		}
		return r.confirm(ctx, ChannelPoll, ext, decimal.Zero)
	}
	if err != nil {
		return Credit{}, err
	}
	if r.Provider == nil {
		return Credit{}, errors.New("no payment provider configured")
	}

	d, err := r.Provider.DonationStatus(ctx, p.ExternalID)
	if err != nil {
		return Credit{}, fmt.Errorf("poll provider for %s: %w", p.ExternalID, err)
	}

	switch d.Status {
	case "paid":
		return r.confirm(ctx, ChannelPoll, p.ExternalID, d.Amount)
	case "pending":
		return Credit{}, ErrPaymentPending
	default:
		return Credit{}, fmt.Errorf("%w: provider status %q", ErrPaymentFailed, d.Status)
	}
}

// SweepExpired drops links older than the pending ttl.
func (r *Reconciler) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	ttl := r.PendingTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	n, err := r.Pending.DeleteCreatedBefore(ctx, now.Add(-ttl))
	if err != nil {
		return n, fmt.Errorf("sweep pending payments: %w", err)
	}
	if n > 0 {
		r.Log.Info("expired payment links removed", zap.Int("count", n))
	}
	return n, nil
}
