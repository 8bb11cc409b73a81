package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/signal-service/discovery"
)

// maxBody caps what is read from a single response.
const maxBody = 8 << 20

var errMalformed = errors.New("malformed payload")

// Bookmaker is the adapter shared by every source: API first, page scrape on failure.
type Bookmaker struct {
	discovery.Extractor

	profile    Profile
	client     *http.Client
	log        *zap.Logger
	onFallback func(sourceID string)
}

func (b *Bookmaker) ID() string { return b.profile.ID }

// Fetch never retries; the next cycle is the retry.
func (b *Bookmaker) Fetch(ctx context.Context) ([]discovery.RawItem, error) {
	var apiErr error
	if b.profile.APIURL != "" {
		items, err := b.fetchAPI(ctx)
		if err == nil {
			return items, nil
		}
		apiErr = fmt.Errorf("api: %w", err)
		b.log.Info("api failed, falling back to scrape", zap.String("source", b.profile.ID), zap.Error(err))
		if b.onFallback != nil {
			b.onFallback(b.profile.ID)
		}
	}

	if b.profile.PageURL == "" {
		return nil, fmt.Errorf("%w: %w", discovery.ErrSourceFailed, errors.Join(apiErr, errors.New("no page url")))
	}

	items, err := b.scrape(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", discovery.ErrSourceFailed, errors.Join(apiErr, fmt.Errorf("scrape: %w", err)))
	}
	return items, nil
}

type apiPayload struct {
	Events *[]apiEvent `json:"events"`
}

type apiEvent struct {
	Sport       string `json:"sport"`
	HomeTeam    string `json:"home_team"`
	AwayTeam    string `json:"away_team"`
	League      string `json:"league"`
	Competition string `json:"competition"`
	StartTime   string `json:"start_time"`
	Odds        struct {
		Home flexString `json:"home"`
		Away flexString `json:"away"`
	} `json:"odds"`
}

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

func (b *Bookmaker) fetchAPI(ctx context.Context) ([]discovery.RawItem, error) {
	body, err := b.get(ctx, b.profile.APIURL, "application/json")
	if err != nil {
		return nil, err
	}

	var p apiPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if p.Events == nil {
		return nil, fmt.Errorf("%w: no events field", errMalformed)
	}

	items := make([]discovery.RawItem, 0, len(*p.Events))
	for _, ev := range *p.Events {
		if sport := strings.ToLower(ev.Sport); sport != "" && sport != "football" && sport != "soccer" {
			continue
		}
		league := ev.League
		if league == "" {
			league = ev.Competition
		}
		items = append(items, discovery.RawItem{
			SourceID:  b.profile.ID,
			Channel:   discovery.ChannelAPI,
			Home:      ev.HomeTeam,
			Away:      ev.AwayTeam,
			League:    league,
			OddsA:     string(ev.Odds.Home),
			OddsB:     string(ev.Odds.Away),
			StartTime: ev.StartTime,
		})
	}
	return items, nil
}

func (b *Bookmaker) scrape(ctx context.Context) ([]discovery.RawItem, error) {
	body, err := b.get(ctx, b.profile.PageURL, "text/html")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	sel := b.profile.Selectors
	var items []discovery.RawItem
	doc.Find(sel.Item).Each(func(_ int, node *goquery.Selection) {
		it := discovery.RawItem{
			SourceID:  b.profile.ID,
			Channel:   discovery.ChannelScrape,
			StartTime: firstText(node, sel.Time),
			League:    firstText(node, sel.League),
		}

		if sel.Teams != "" {
			it.Label = firstText(node, sel.Teams)
		} else {
			teams := texts(node, sel.Team, 2)
			if len(teams) == 2 {
				it.Home, it.Away = teams[0], teams[1]
			} else {
				it.Label = strings.Join(teams, b.Delimiter)
			}
		}

		odds := texts(node, sel.Odds, 2)
		if len(odds) > 0 {
			it.OddsA = odds[0]
		}
		if len(odds) > 1 {
			it.OddsB = odds[1]
		}

		items = append(items, it)
	})
	return items, nil
}

func (b *Bookmaker) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

func firstText(node *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(node.Find(selector).First().Text())
}

func texts(node *goquery.Selection, selector string, limit int) []string {
	var out []string
	node.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
		return len(out) < limit
	})
	return out
}

// Deps are the shared collaborators handed to every factory.
type Deps struct {
	Log        *zap.Logger
	Timeout    time.Duration
	Now        func() time.Time
	OnFallback func(sourceID string)

	OnTimeFallback func(sourceID, raw string)
}
