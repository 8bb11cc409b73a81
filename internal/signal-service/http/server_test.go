package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/shared/config"
	"github.com/radieske/football-signals/internal/signal-service/discovery"
	"github.com/radieske/football-signals/internal/signal-service/entitlement"
	"github.com/radieske/football-signals/internal/signal-service/match"
	"github.com/radieske/football-signals/internal/signal-service/payment"
	"github.com/radieske/football-signals/internal/signal-service/repo"
)

type fakeDiscoverer struct{ n int }

func (f fakeDiscoverer) Discover(context.Context) ([]match.Match, discovery.Result) {
	out := make([]match.Match, f.n)
	for i := range out {
		out[i] = match.Match{HomeTeam: "H", AwayTeam: "A", SourceID: "1xbet", OddsA: 4.25, OddsB: 1.22}
	}
	return out, discovery.Result{Matches: out}
}

type fixture struct {
	handler    http.Handler
	store      *repo.Memory
	reconciler *payment.Reconciler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := repo.NewMemory()
	gate := entitlement.NewService(store, entitlement.Limits{Trial: 3, Daily: 15}, zap.NewNop())
	gate.Now = clock

	catalog, err := payment.NewCatalog([]config.PlanConfig{
		{Kind: "week", Days: 7, Price: "650"},
		{Kind: "month", Days: 30, Price: "2500", Savings: "700"},
	}, "RUB")
	if err != nil {
		t.Fatal(err)
	}
	rec := &payment.Reconciler{
		Catalog: catalog,
		Pending: payment.NewMemoryPending(),
		Store:   store,
		Locker:  payment.NewLocalLocker(),
		Log:     zap.NewNop(),
		BaseURL: "https://pay.example",
		Now:     clock,
	}

	s := NewServer(zap.NewNop(), Deps{
		Users:       store,
		Gate:        gate,
		Payments:    rec,
		Catalog:     catalog,
		Discoverer:  fakeDiscoverer{n: 8},
		Admins:      store,
		Stats:       store,
		CORSOrigins: []string{"*"},
		Now:         clock,
	})
	return fixture{handler: s.Router(), store: store, reconciler: rec}
}

func (f fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndPlans(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/v1/plans", "")
	plans := decode[[]payment.Plan](t, rec)
	if len(plans) != 2 || plans[1].Kind != "month" {
		t.Errorf("plans = %+v", plans)
	}
}

func TestDonationWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.store.UpsertUser(ctx, "42", "bob", "Bob")
	p, err := f.reconciler.Open(ctx, "42", "week")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		body   string
		code   int
		status string
	}{
		{"bad json", `{`, http.StatusBadRequest, "error"},
		{"not paid", `{"id":1,"amount":650,"external_id":"` + p.ExternalID + `","status":"pending"}`, http.StatusOK, "failed"},
		{"unknown id", `{"id":1,"amount":650,"external_id":"nope","status":"paid"}`, http.StatusOK, "failed"},
		{"short", `{"id":1,"amount":"600","external_id":"` + p.ExternalID + `","status":"paid"}`, http.StatusOK, "insufficient_amount"},
		{"paid", `{"id":1,"amount":650,"external_id":"` + p.ExternalID + `","status":"paid"}`, http.StatusOK, "success"},
		{"replayed", `{"id":1,"amount":650,"external_id":"` + p.ExternalID + `","status":"paid"}`, http.StatusOK, "already_confirmed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/webhook/donation_alerts", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, body %s", rec.Code, rec.Body.String())
			}
			if got := decode[StatusResponse](t, rec); got.Status != tt.status {
				t.Errorf("status = %q, want %q", got.Status, tt.status)
			}
		})
	}

	u, _ := f.store.GetUser(ctx, "42")
	if u.Plan != entitlement.PlanActive {
		t.Errorf("plan = %s", u.Plan)
	}
}

func TestDiscoverConsumesTrial(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/v1/users/7", `{"username":"ann"}`); rec.Code != http.StatusOK {
		t.Fatalf("upsert = %d", rec.Code)
	}

	for i := 1; i <= 3; i++ {
		rec := f.do(t, http.MethodPost, "/v1/users/7/discover", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("discover %d = %d", i, rec.Code)
		}
		resp := decode[DiscoverResponse](t, rec)
		if len(resp.Matches) != MaxDiscovered {
			t.Errorf("matches = %d, want %d", len(resp.Matches), MaxDiscovered)
		}
		if resp.User.TrialUsed != i {
			t.Errorf("trial used = %d, want %d", resp.User.TrialUsed, i)
		}
	}

	rec := f.do(t, http.MethodPost, "/v1/users/7/discover", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("fourth discover = %d", rec.Code)
	}
	if d := decode[entitlement.Decision](t, rec); d.Reason != entitlement.ReasonTrialExhausted {
		t.Errorf("reason = %q", d.Reason)
	}

	if rec := f.do(t, http.MethodPost, "/v1/users/ghost/discover", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown user = %d", rec.Code)
	}
}

func TestOpenPayment(t *testing.T) {
	f := newFixture(t)
	_, _ = f.store.UpsertUser(context.Background(), "42", "", "")

	if rec := f.do(t, http.MethodPost, "/v1/payments", `{"user_id":"42","kind":"year"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown plan = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/v1/payments", `{"user_id":"ghost","kind":"week"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown user = %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/v1/payments", `{"user_id":"42","kind":"month"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open = %d %s", rec.Code, rec.Body.String())
	}
	p := decode[payment.PendingPayment](t, rec)
	if p.LinkID == "" || p.AmountDue.String() != "2500" {
		t.Errorf("pending = %+v", p)
	}

	if rec := f.do(t, http.MethodPost, "/v1/payments/unknown-link/check", ""); rec.Code != http.StatusNotFound {
		t.Errorf("check unknown link = %d", rec.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.store.AddAdmin(ctx, "root")
	_, _ = f.store.UpsertUser(ctx, "42", "", "")

	if rec := f.do(t, http.MethodGet, "/v1/admin/stats", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no header = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/v1/admin/stats", "", adminHeader, "42"); rec.Code != http.StatusForbidden {
		t.Errorf("non admin = %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/v1/admin/users/42/grant", `{"kind":"month"}`, adminHeader, "root")
	if rec.Code != http.StatusOK {
		t.Fatalf("grant = %d %s", rec.Code, rec.Body.String())
	}
	if u := decode[entitlement.User](t, rec); u.Plan != entitlement.PlanActive || u.SubscriptionKind != "month" {
		t.Errorf("granted = %+v", u)
	}

	rec = f.do(t, http.MethodGet, "/v1/admin/stats", "", adminHeader, "root")
	if st := decode[repo.Stats](t, rec); st.ActiveUsers != 1 {
		t.Errorf("stats = %+v", st)
	}

	if rec := f.do(t, http.MethodPost, "/v1/admin/users/42/revoke", "", adminHeader, "root"); rec.Code != http.StatusOK {
		t.Errorf("revoke = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/v1/admin/users/ghost/revoke", "", adminHeader, "root"); rec.Code != http.StatusNotFound {
		t.Errorf("revoke unknown = %d", rec.Code)
	}

	if rec := f.do(t, http.MethodPost, "/v1/admin/admins/99", "", adminHeader, "root"); rec.Code != http.StatusCreated {
		t.Errorf("add admin = %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/v1/admin/admins", "", adminHeader, "99")
	if ids := decode[[]string](t, rec); len(ids) != 2 {
		t.Errorf("admins = %v", ids)
	}
	if rec := f.do(t, http.MethodDelete, "/v1/admin/admins/99", "", adminHeader, "root"); rec.Code != http.StatusOK {
		t.Errorf("remove admin = %d", rec.Code)
	}
}

func TestGetUserAndHistory(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/v1/users/ghost", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown = %d", rec.Code)
	}
	_, _ = f.store.UpsertUser(context.Background(), "42", "", "")

	rec := f.do(t, http.MethodGet, "/v1/users/42", "")
	if d := decode[entitlement.Decision](t, rec); !d.Allowed || d.User.Plan != entitlement.PlanTrial {
		t.Errorf("decision = %+v", d)
	}

	rec = f.do(t, http.MethodGet, "/v1/users/42/payments", "")
	if list := decode[[]payment.ConfirmedPayment](t, rec); len(list) != 0 {
		t.Errorf("payments = %+v", list)
	}
	rec = f.do(t, http.MethodGet, "/v1/users/42/signals", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Errorf("signals = %d %q", rec.Code, rec.Body.String())
	}
}

func TestCheckPaymentAfterWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.store.UpsertUser(ctx, "42", "", "")
	p, err := f.reconciler.Open(ctx, "42", "week")
	if err != nil {
		t.Fatal(err)
	}

	body := `{"id":7,"amount":650,"external_id":"` + p.ExternalID + `","status":"paid"}`
	if rec := f.do(t, http.MethodPost, "/webhook/donation_alerts", body); decode[StatusResponse](t, rec).Status != "success" {
		t.Fatalf("webhook = %s", rec.Body.String())
	}

	rec := f.do(t, http.MethodPost, "/v1/payments/"+p.LinkID+"/check", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("check = %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[StatusResponse](t, rec); got.Status != "already_confirmed" {
		t.Errorf("status = %q, want already_confirmed", got.Status)
	}
}
