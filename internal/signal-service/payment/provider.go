package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Donation is the provider's view of one payment.
type Donation struct {
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

// Provider polls the donation provider API.
type Provider struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

func NewProvider(baseURL, token string, rps float64, client *http.Client) *Provider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if rps <= 0 {
		rps = 1
	}
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (p *Provider) DonationStatus(ctx context.Context, externalID string) (Donation, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Donation{}, fmt.Errorf("rate limit: %w", err)
	}

	endpoint := p.baseURL + "/api/v1/alerts/donations/" + url.PathEscape(externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Donation{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Donation{}, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Donation{}, fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var d Donation
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return Donation{}, fmt.Errorf("decoding response: %w", err)
	}
	return d, nil
}
