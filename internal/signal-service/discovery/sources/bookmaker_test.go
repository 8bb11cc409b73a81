package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/signal-service/discovery"
)

const apiBody = `{"events":[
 {"sport":"football","home_team":"Arsenal","away_team":"Chelsea","league":"EPL","odds":{"home":4.25,"away":"1.225"},"start_time":"2024-06-11T18:45:00Z"},
 {"sport":"tennis","home_team":"A","away_team":"B","odds":{"home":1.5,"away":2.5}},
 {"sport":"football","home_team":"Roma","away_team":"Lazio","competition":"Serie A","odds":{"home":"2.1","away":"3.3"},"start_time":"11.06.2024 20:00"}
]}`

const pageBody = `<html><body>
<div class="c-events__item">
  <div class="c-events__league">Premier League</div>
  <div class="c-events__teams">Arsenal - Chelsea</div>
  <span class="c-bets__bet">4.27</span><span class="c-bets__bet">1.20</span><span class="c-bets__bet">9.0</span>
  <div class="c-events__time">19:30</div>
</div>
<div class="c-events__item">
  <div class="c-events__teams">Broken</div>
  <span class="c-bets__bet">-</span>
</div>
</body></html>`

func testDeps() Deps {
	return Deps{
		Log:     zap.NewNop(),
		Timeout: 2 * time.Second,
		Now:     func() time.Time { return time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC) },
	}
}

func oneXBet(api, page string) Profile {
	p := builtin["1xbet"]
	p.APIURL = api
	p.PageURL = page
	return p
}

func TestBookmakerAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(apiBody))
	}))
	defer server.Close()

	ad := NewBookmaker(oneXBet(server.URL, ""), testDeps())
	items, err := ad.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 (tennis skipped)", len(items))
	}
	if items[0].Channel != discovery.ChannelAPI || items[0].OddsA != "4.25" || items[0].OddsB != "1.225" {
		t.Errorf("item = %+v", items[0])
	}
	if items[1].League != "Serie A" {
		t.Errorf("competition should fill league, got %q", items[1].League)
	}

	m, err := ad.Extract(items[0])
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if m.HomeTeam != "Arsenal" || m.SourceID != "1xbet" || m.League != "EPL" {
		t.Errorf("match = %+v", m)
	}
}

func TestBookmakerFallsBackToScrape(t *testing.T) {
	tests := []struct {
		name string
		api  http.HandlerFunc
	}{
		{"non 2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>")) }},
		{"missing events", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"data":[]}`)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api", tt.api)
			mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(pageBody))
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			var fallbacks int
			deps := testDeps()
			deps.OnFallback = func(string) { fallbacks++ }

			ad := NewBookmaker(oneXBet(server.URL+"/api", server.URL+"/page"), deps)
			items, err := ad.Fetch(context.Background())
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if fallbacks != 1 {
				t.Errorf("fallbacks = %d, want 1", fallbacks)
			}
			if len(items) != 2 {
				t.Fatalf("items = %d, want 2", len(items))
			}

			m, err := ad.Extract(items[0])
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if m.HomeTeam != "Arsenal" || m.AwayTeam != "Chelsea" || m.OddsA != 4.27 || m.OddsB != 1.20 {
				t.Errorf("match = %+v", m)
			}
			if m.League != "Premier League" || m.StartTime.Hour() != 19 {
				t.Errorf("league/time = %q %v", m.League, m.StartTime)
			}

			if _, err := ad.Extract(items[1]); !errors.Is(err, discovery.ErrExtraction) {
				t.Errorf("broken item err = %v", err)
			}
		})
	}
}

func TestBookmakerBothChannelsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	ad := NewBookmaker(oneXBet(server.URL+"/api", server.URL+"/page"), testDeps())
	items, err := ad.Fetch(context.Background())
	if !errors.Is(err, discovery.ErrSourceFailed) {
		t.Fatalf("err = %v, want ErrSourceFailed", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %d, want 0", len(items))
	}
}

func TestBookmakerGenericSelectors(t *testing.T) {
	page := `<div class="event">
	  <span class="home-team">Ajax</span><span class="away-team">PSV</span>
	  <span class="odds-value">4,22</span><span class="odds-value">1,23</span>
	  <span class="event-time">21:00</span>
	</div>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	p := builtin["unibet"]
	p.PageURL = server.URL

	ad := NewBookmaker(p, testDeps())
	items, err := ad.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
	m, err := ad.Extract(items[0])
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if m.HomeTeam != "Ajax" || m.AwayTeam != "PSV" || m.OddsA != 4.22 || m.OddsB != 1.23 {
		t.Errorf("match = %+v", m)
	}
}
