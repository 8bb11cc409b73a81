package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/football-signals/internal/signal-service/entitlement"
)

var (
	ErrNotFound           = errors.New("pending payment not found")
	ErrInsufficientAmount = errors.New("insufficient amount")
	ErrAlreadyConfirmed   = errors.New("payment already confirmed")
	ErrUnknownPlan        = errors.New("unknown plan")

	// ErrPaymentPending and ErrPaymentFailed are poll outcomes that credit nothing.
	ErrPaymentPending = errors.New("payment pending")
	ErrPaymentFailed  = errors.New("payment failed")
)

// Confirmation channels.
const (
	ChannelPush = "push"
	ChannelPoll = "poll"
)

// PendingPayment is an issued payment link awaiting confirmation.
type PendingPayment struct {
	LinkID     string          `json:"link_id"`
	ExternalID string          `json:"external_id"`
	UserID     string          `json:"user_id"`
	Kind       string          `json:"kind"`
	AmountDue  decimal.Decimal `json:"amount_due"`
	Currency   string          `json:"currency"`
	PaymentURL string          `json:"payment_url"`
	CreatedAt  time.Time       `json:"created_at"`
}

type ConfirmedPayment struct {
	UserID      string          `json:"user_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ExternalID  string          `json:"external_id"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

// Credit is the result of a successful confirmation.
type Credit struct {
	Payment ConfirmedPayment `json:"payment"`
	User    entitlement.User `json:"user"`
	Channel string           `json:"channel"`
}

// Store persists confirmed payments. CreditPayment records the payment and extends the
// subscription in one transaction and returns an error wrapping ErrAlreadyConfirmed
// when the external id was already stored.
type Store interface {
	HasConfirmedPayment(ctx context.Context, externalID string) (bool, error)
	CreditPayment(ctx context.Context, p ConfirmedPayment, days int) (entitlement.User, error)
}
