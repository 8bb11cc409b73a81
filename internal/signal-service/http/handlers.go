package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/signal-service/entitlement"
	"github.com/radieske/football-signals/internal/signal-service/match"
	"github.com/radieske/football-signals/internal/signal-service/payment"
)

const adminHeader = "X-Admin-ID"

// donationWebhook is the push channel. Every handled payload answers 200 with a status.
func (s *Server) donationWebhook(w http.ResponseWriter, r *http.Request) {
	var req DonationWebhook
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StatusResponse{Status: "error", Error: "bad json"})
		return
	}
	log := s.log.With(zap.String("external_id", req.ExternalID), zap.String("status", req.Status))
	log.Info("donation webhook received")

	if req.ExternalID == "" || req.Status != "paid" {
		writeJSON(w, http.StatusOK, StatusResponse{Status: "failed"})
		return
	}

	_, err := s.d.Payments.Confirm(r.Context(), req.ExternalID, req.Amount)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, StatusResponse{Status: "success"})
	case errors.Is(err, payment.ErrInsufficientAmount):
		writeJSON(w, http.StatusOK, StatusResponse{Status: "insufficient_amount"})
	case errors.Is(err, payment.ErrAlreadyConfirmed):
		writeJSON(w, http.StatusOK, StatusResponse{Status: "already_confirmed"})
	case errors.Is(err, payment.ErrNotFound):
		writeJSON(w, http.StatusOK, StatusResponse{Status: "failed"})
	default:
		log.Error("donation webhook failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, StatusResponse{Status: "error"})
	}
}

func (s *Server) listPlans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.d.Catalog.Plans())
}

func (s *Server) upsertUser(w http.ResponseWriter, r *http.Request) {
	var req UpsertUserRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
	}
	u, err := s.d.Users.UpsertUser(r.Context(), chi.URLParam(r, "id"), req.Username, req.FirstName)
	if err != nil {
		s.internal(w, "upsert user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	d, err := s.d.Gate.Check(r.Context(), chi.URLParam(r, "id"))
	if s.userErr(w, "check access", err) {
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// discover spends one unit of quota and runs a fresh aggregation for the caller.
func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	d, err := s.d.Gate.Consume(r.Context(), userID)
	if s.userErr(w, "consume signal", err) {
		return
	}
	if !d.Allowed {
		writeJSON(w, http.StatusForbidden, d)
		return
	}

	matches, res := s.d.Discoverer.Discover(r.Context())
	if len(matches) > MaxDiscovered {
		matches = matches[:MaxDiscovered]
	}
	if matches == nil {
		matches = []match.Match{}
	}
	s.log.Info("on-demand discovery", zap.String("user_id", userID), zap.Int("matches", len(matches)))
	writeJSON(w, http.StatusOK, DiscoverResponse{Matches: matches, FailedSources: res.Failed(), User: d.User})
}

func (s *Server) recentSignals(w http.ResponseWriter, r *http.Request) {
	if s.d.Recent == nil {
		writeJSON(w, http.StatusOK, []json.RawMessage{})
		return
	}
	list, err := s.d.Recent.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.internal(w, "recent signals", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) paymentHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.Users.ListPayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.internal(w, "list payments", err)
		return
	}
	if list == nil {
		list = []payment.ConfirmedPayment{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) openPayment(w http.ResponseWriter, r *http.Request) {
	var req OpenPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.UserID == "" || req.Kind == "" {
		writeError(w, http.StatusBadRequest, "user_id and kind required")
		return
	}
	if _, err := s.d.Users.GetUser(r.Context(), req.UserID); s.userErr(w, "get user", err) {
		return
	}

	p, err := s.d.Payments.Open(r.Context(), req.UserID, req.Kind)
	if errors.Is(err, payment.ErrUnknownPlan) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internal(w, "open payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// checkPayment is the poll channel.
func (s *Server) checkPayment(w http.ResponseWriter, r *http.Request) {
	c, err := s.d.Payments.Check(r.Context(), chi.URLParam(r, "link"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "credit": c})
	case errors.Is(err, payment.ErrNotFound):
		writeError(w, http.StatusNotFound, "payment link not found")
	case errors.Is(err, payment.ErrPaymentPending):
		writeJSON(w, http.StatusOK, StatusResponse{Status: "pending"})
	case errors.Is(err, payment.ErrPaymentFailed):
		writeJSON(w, http.StatusOK, StatusResponse{Status: "failed"})
	case errors.Is(err, payment.ErrInsufficientAmount):
		writeJSON(w, http.StatusOK, StatusResponse{Status: "insufficient_amount"})
	case errors.Is(err, payment.ErrAlreadyConfirmed):
		writeJSON(w, http.StatusOK, StatusResponse{Status: "already_confirmed"})
	default:
		s.log.Warn("payment check failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, StatusResponse{Status: "error", Error: err.Error()})
	}
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(adminHeader)
		if id == "" {
			writeError(w, http.StatusUnauthorized, adminHeader+" required")
			return
		}
		ok, err := s.d.Admins.IsAdmin(r.Context(), id)
		if err != nil {
			s.internal(w, "is admin", err)
			return
		}
		if !ok {
			writeError(w, http.StatusForbidden, "not an admin")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) grant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	plan, err := s.d.Catalog.Plan(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.d.Gate.Grant(r.Context(), chi.URLParam(r, "id"), plan.Kind, plan.Days)
	if err != nil {
		s.internal(w, "grant", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) revoke(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Gate.Revoke(r.Context(), chi.URLParam(r, "id")); s.userErr(w, "revoke", err) {
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "revoked"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.d.Stats.Stats(r.Context(), s.d.Now())
	if err != nil {
		s.internal(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) listAdmins(w http.ResponseWriter, r *http.Request) {
	ids, err := s.d.Admins.ListAdmins(r.Context())
	if err != nil {
		s.internal(w, "list admins", err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) addAdmin(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Admins.AddAdmin(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.internal(w, "add admin", err)
		return
	}
	writeJSON(w, http.StatusCreated, StatusResponse{Status: "added"})
}

func (s *Server) removeAdmin(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Admins.RemoveAdmin(r.Context(), chi.URLParam(r, "id")); s.userErr(w, "remove admin", err) {
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "removed"})
}

// userErr writes 404 for unknown users and 500 otherwise. It reports whether it wrote.
func (s *Server) userErr(w http.ResponseWriter, op string, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, entitlement.ErrUnknownUser) {
		writeError(w, http.StatusNotFound, "user not found")
		return true
	}
	s.internal(w, op, err)
	return true
}

func (s *Server) internal(w http.ResponseWriter, op string, err error) {
	s.log.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
