package httpapi

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/radieske/football-signals/internal/signal-service/entitlement"
	"github.com/radieske/football-signals/internal/signal-service/match"
)

// DonationWebhook is the provider's push payload.
type DonationWebhook struct {
	ID         json.RawMessage `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	ExternalID string          `json:"external_id"`
	Status     string          `json:"status"`
}

type UpsertUserRequest struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

type OpenPaymentRequest struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
}

type GrantRequest struct {
	Kind string `json:"kind"`
}

type DiscoverResponse struct {
	Matches       []match.Match    `json:"matches"`
	FailedSources []string         `json:"failed_sources,omitempty"`
	User          entitlement.User `json:"user"`
}

type StatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
