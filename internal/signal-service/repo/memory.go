package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/radieske/football-signals/internal/signal-service/entitlement"
	"github.com/radieske/football-signals/internal/signal-service/match"
	"github.com/radieske/football-signals/internal/signal-service/payment"
)

// Memory implements the same store contract as Postgres, guarded by one mutex.
// Used in tests and when no database is configured.
type Memory struct {
	mu       sync.Mutex
	users    map[string]entitlement.User
	admins   map[string]time.Time
	matches  map[string]match.Match
	sent     map[string]SentSignal
	payments []payment.ConfirmedPayment
	byExt    map[string]bool
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:   map[string]entitlement.User{},
		admins:  map[string]time.Time{},
		matches: map[string]match.Match{},
		sent:    map[string]SentSignal{},
		byExt:   map[string]bool{},
		now:     time.Now,
	}
}

func (m *Memory) UpsertUser(_ context.Context, userID, username, firstName string) (entitlement.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		u = entitlement.User{ID: userID, Plan: entitlement.PlanTrial, CreatedAt: m.now()}
	}
	u.Username, u.FirstName = username, firstName
	m.users[userID] = u
	return u, nil
}

func (m *Memory) GetUser(_ context.Context, userID string) (entitlement.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return entitlement.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) ConsumeSignal(_ context.Context, userID string, l entitlement.Limits, now time.Time) (entitlement.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return entitlement.User{}, false, ErrNotFound
	}
	if !entitlement.CheckAccess(u, l, now).Allowed {
		return u, false, nil
	}
	u = entitlement.Apply(u, now)
	m.users[userID] = u
	return u, true, nil
}

func (m *Memory) IncrementTrial(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.TrialUsed++
	m.users[userID] = u
	return nil
}

func (m *Memory) IncrementDaily(_ context.Context, userID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if entitlement.SameDay(u.LastSignalDate, now) {
		u.DailyUsed++
	} else {
		u.DailyUsed = 1
		u.LastSignalDate = entitlement.Day(now)
	}
	m.users[userID] = u
	return nil
}

func (m *Memory) activate(userID, kind string, end time.Time) entitlement.User {
	u, ok := m.users[userID]
	if !ok {
		u = entitlement.User{ID: userID, CreatedAt: m.now()}
	}
	u.Plan = entitlement.PlanActive
	u.SubscriptionKind = kind
	u.SubscriptionEnd = &end
	u.DailyUsed = 0
	m.users[userID] = u
	return u
}

func (m *Memory) UpdateSubscription(_ context.Context, userID, kind string, days int, now time.Time) (entitlement.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activate(userID, kind, now.Add(time.Duration(days)*24*time.Hour)), nil
}

func (m *Memory) Revoke(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Plan = entitlement.PlanRevoked
	u.SubscriptionEnd = nil
	m.users[userID] = u
	return nil
}

func (m *Memory) ExpireIfLapsed(_ context.Context, userID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || !u.Lapsed(now) {
		return false, nil
	}
	u.Plan = entitlement.PlanRevoked
	u.SubscriptionEnd = nil
	m.users[userID] = u
	return true, nil
}

func (m *Memory) ListExpiredUsers(_ context.Context, now time.Time) ([]entitlement.User, error) {
	return m.filterUsers(func(u entitlement.User) bool { return u.Lapsed(now) }), nil
}

func (m *Memory) ListActiveUsers(_ context.Context, now time.Time) ([]entitlement.User, error) {
	return m.filterUsers(func(u entitlement.User) bool { return activeAt(u, now) }), nil
}

func activeAt(u entitlement.User, now time.Time) bool {
	return u.Plan == entitlement.PlanActive && !u.Lapsed(now)
}

func (m *Memory) filterUsers(keep func(entitlement.User) bool) []entitlement.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entitlement.User
	for _, u := range m.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) RecordConfirmedPayment(_ context.Context, cp payment.ConfirmedPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertPayment(cp)
}

func (m *Memory) insertPayment(cp payment.ConfirmedPayment) error {
	if m.byExt[cp.ExternalID] {
		return ErrDuplicatePayment
	}
	m.byExt[cp.ExternalID] = true
	m.payments = append(m.payments, cp)
	return nil
}

func (m *Memory) CreditPayment(_ context.Context, cp payment.ConfirmedPayment, days int) (entitlement.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertPayment(cp); err != nil {
		return entitlement.User{}, err
	}
	return m.activate(cp.UserID, cp.Kind, cp.ConfirmedAt.Add(time.Duration(days)*24*time.Hour)), nil
}

func (m *Memory) HasConfirmedPayment(_ context.Context, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byExt[externalID], nil
}

func (m *Memory) ListPayments(_ context.Context, userID string) ([]payment.ConfirmedPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []payment.ConfirmedPayment
	for i := len(m.payments) - 1; i >= 0; i-- {
		if m.payments[i].UserID == userID {
			out = append(out, m.payments[i])
		}
	}
	return out, nil
}

func (m *Memory) Stats(_ context.Context, now time.Time) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, u := range m.users {
		if activeAt(u, now) {
			s.ActiveUsers++
		} else {
			s.InactiveUsers++
		}
	}

	since := now.Add(-statsWindow)
	counts := map[string]int{}
	for _, p := range m.payments {
		if !p.ConfirmedAt.Before(since) {
			s.WeeklyPurchases++
			counts[p.Kind]++
		}
	}
	for kind, n := range counts {
		if n > counts[s.PopularPlan] || (n == counts[s.PopularPlan] && kind < s.PopularPlan) {
			s.PopularPlan = kind
		}
	}
	return s, nil
}

func (m *Memory) AddAdmin(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[userID]; !ok {
		m.admins[userID] = m.now()
	}
	return nil
}

func (m *Memory) RemoveAdmin(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[userID]; !ok {
		return ErrNotFound
	}
	delete(m.admins, userID)
	return nil
}

func (m *Memory) IsAdmin(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.admins[userID]
	return ok, nil
}

func (m *Memory) ListAdmins(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.admins))
	for id := range m.admins {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) RecordMatch(_ context.Context, mt match.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mt.Key().String()
	if _, ok := m.matches[k]; !ok {
		m.matches[k] = mt
	}
	return nil
}

func (m *Memory) RecordSentSignal(_ context.Context, s SentSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sent[s.DeliveryID]; !ok {
		m.sent[s.DeliveryID] = s
	}
	return nil
}

// Matches returns how many distinct matches were recorded.
func (m *Memory) Matches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matches)
}

// SentSignals returns the logged deliveries for userID.
func (m *Memory) SentSignals(userID string) []SentSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentSignal
	for _, s := range m.sent {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}
