package events

import "time"

// Kinds carried by SignalDelivered.
const (
	KindMatch   = "match"
	KindExpired = "subscription_expired"
	KindReport  = "weekly_report"
)

// MatchPayload is the structured match handed to the bot front end.
type MatchPayload struct {
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	League    string    `json:"league"`
	Source    string    `json:"source"`
	OddsA     float64   `json:"odds_a"`
	OddsB     float64   `json:"odds_b"`
	StartTime time.Time `json:"start_time"`
}

// ReportPayload carries the weekly admin statistics.
type ReportPayload struct {
	ActiveUsers     int    `json:"active_users"`
	InactiveUsers   int    `json:"inactive_users"`
	WeeklyPurchases int    `json:"weekly_purchases"`
	PopularPlan     string `json:"popular_plan,omitempty"`
}

// Event published on "signals_delivered" once the entitlement gate approved a delivery.
type SignalDelivered struct {
	DeliveryID string         `json:"delivery_id"`
	UserID     string         `json:"user_id"`
	Kind       string         `json:"kind"`
	Match      *MatchPayload  `json:"match,omitempty"`
	Report     *ReportPayload `json:"report,omitempty"`
	Ts         time.Time      `json:"ts"`
}
