package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/signal-service/discovery"
	"github.com/radieske/football-signals/internal/signal-service/entitlement"
	"github.com/radieske/football-signals/internal/signal-service/match"
	"github.com/radieske/football-signals/internal/signal-service/payment"
	"github.com/radieske/football-signals/internal/signal-service/repo"
)

// MaxDiscovered caps the matches returned by an on-demand discovery.
const MaxDiscovered = 5

type Users interface {
	UpsertUser(ctx context.Context, userID, username, firstName string) (entitlement.User, error)
	GetUser(ctx context.Context, userID string) (entitlement.User, error)
	ListPayments(ctx context.Context, userID string) ([]payment.ConfirmedPayment, error)
}

type Gate interface {
	Check(ctx context.Context, userID string) (entitlement.Decision, error)
	Consume(ctx context.Context, userID string) (entitlement.Decision, error)
	Grant(ctx context.Context, userID, kind string, days int) (entitlement.User, error)
	Revoke(ctx context.Context, userID string) error
}

type Payments interface {
	Open(ctx context.Context, userID, kind string) (payment.PendingPayment, error)
	Confirm(ctx context.Context, externalID string, paid decimal.Decimal) (payment.Credit, error)
	Check(ctx context.Context, linkID string) (payment.Credit, error)
}

type Catalog interface {
	Plan(kind string) (payment.Plan, error)
	Plans() []payment.Plan
}

type Discoverer interface {
	Discover(ctx context.Context) ([]match.Match, discovery.Result)
}

type Admins interface {
	AddAdmin(ctx context.Context, userID string) error
	RemoveAdmin(ctx context.Context, userID string) error
	IsAdmin(ctx context.Context, userID string) (bool, error)
	ListAdmins(ctx context.Context) ([]string, error)
}

type Stats interface {
	Stats(ctx context.Context, now time.Time) (repo.Stats, error)
}

type Recent interface {
	List(ctx context.Context, userID string) ([]json.RawMessage, error)
}

// Deps are the collaborators behind the API. Recent and Hub are optional.
type Deps struct {
	Users      Users
	Gate       Gate
	Payments   Payments
	Catalog    Catalog
	Discoverer Discoverer
	Admins     Admins
	Stats      Stats
	Recent     Recent
	Hub        http.HandlerFunc

	CORSOrigins []string
	Now         func() time.Time
}

// Server is the public API of the signal service.
type Server struct {
	log *zap.Logger
	d   Deps
}

func NewServer(log *zap.Logger, d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Server{log: log, d: d}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.d.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", adminHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Post("/webhook/donation_alerts", s.donationWebhook)
	if s.d.Hub != nil {
		r.Get("/ws", s.d.Hub)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/plans", s.listPlans)

		r.Post("/users/{id}", s.upsertUser)
		r.Get("/users/{id}", s.getUser)
		r.Post("/users/{id}/discover", s.discover)
		r.Get("/users/{id}/signals", s.recentSignals)
		r.Get("/users/{id}/payments", s.paymentHistory)

		r.Post("/payments", s.openPayment)
		r.Post("/payments/{link}/check", s.checkPayment)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/users/{id}/grant", s.grant)
			r.Post("/users/{id}/revoke", s.revoke)
			r.Get("/stats", s.stats)
			r.Get("/admins", s.listAdmins)
			r.Post("/admins/{id}", s.addAdmin)
			r.Delete("/admins/{id}", s.removeAdmin)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
