package repo

import (
	"fmt"
	"time"

	"github.com/radieske/football-signals/internal/signal-service/entitlement"
	"github.com/radieske/football-signals/internal/signal-service/payment"
)

var (
	ErrNotFound = entitlement.ErrUnknownUser
	// ErrDuplicatePayment is returned when the external payment id is already stored.
	ErrDuplicatePayment = fmt.Errorf("duplicate external payment id: %w", payment.ErrAlreadyConfirmed)
)

// Stats is the admin summary.
type Stats struct {
	ActiveUsers     int    `json:"active_users"`
	InactiveUsers   int    `json:"inactive_users"`
	WeeklyPurchases int    `json:"weekly_purchases"`
	PopularPlan     string `json:"popular_plan,omitempty"`
}

// SentSignal is one delivery logged by the notifier.
type SentSignal struct {
	DeliveryID string
	UserID     string
	Kind       string
	MatchKey   string
	SentAt     time.Time
}

const statsWindow = 7 * 24 * time.Hour
