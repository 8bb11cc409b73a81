package events

import "time"

// Event published on "payments_credited" after a payment was credited exactly once.
type PaymentCredited struct {
	ExternalID      string    `json:"external_id"`
	UserID          string    `json:"user_id"`
	Kind            string    `json:"kind"`
	Amount          string    `json:"amount"`  // decimal string, RUB
	Channel         string    `json:"channel"` // "push" | "poll"
	SubscriptionEnd time.Time `json:"subscription_end"`
	Ts              time.Time `json:"ts"`
}
