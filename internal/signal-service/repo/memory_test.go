package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/football-signals/internal/signal-service/entitlement"
	"github.com/radieske/football-signals/internal/signal-service/match"
	"github.com/radieske/football-signals/internal/signal-service/payment"
)

var limits = entitlement.Limits{Trial: 3, Daily: 15}

func TestMemoryConsumeTrial(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	if _, err := m.UpsertUser(ctx, "42", "bob", "Bob"); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		u, ok, err := m.ConsumeSignal(ctx, "42", limits, now)
		if err != nil || !ok {
			t.Fatalf("consume %d: ok=%v err=%v", i, ok, err)
		}
		if u.TrialUsed != i {
			t.Fatalf("trial used = %d, want %d", u.TrialUsed, i)
		}
	}
	u, ok, err := m.ConsumeSignal(ctx, "42", limits, now)
	if err != nil || ok {
		t.Fatalf("fourth consume: ok=%v err=%v", ok, err)
	}
	if u.TrialUsed != 3 {
		t.Errorf("denied consume must not increment, got %d", u.TrialUsed)
	}

	if _, _, err := m.ConsumeSignal(ctx, "nobody", limits, now); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestMemoryDailyResetsOnNewDay(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day1 := time.Date(2024, 6, 10, 23, 0, 0, 0, time.UTC)
	if _, err := m.UpdateSubscription(ctx, "7", "week", 7, day1); err != nil {
		t.Fatal(err)
	}
	l := entitlement.Limits{Trial: 3, Daily: 2}

	for i := 0; i < 2; i++ {
		if _, ok, _ := m.ConsumeSignal(ctx, "7", l, day1); !ok {
			t.Fatalf("consume %d denied", i)
		}
	}
	if _, ok, _ := m.ConsumeSignal(ctx, "7", l, day1); ok {
		t.Fatal("daily limit not enforced")
	}

	day2 := day1.Add(2 * time.Hour)
	u, ok, _ := m.ConsumeSignal(ctx, "7", l, day2)
	if !ok || u.DailyUsed != 1 {
		t.Fatalf("new day: ok=%v daily=%d", ok, u.DailyUsed)
	}
}

func TestMemoryIncrementDaily(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	_, _ = m.UpsertUser(ctx, "1", "", "")

	_ = m.IncrementDaily(ctx, "1", now)
	_ = m.IncrementDaily(ctx, "1", now)
	_ = m.IncrementDaily(ctx, "1", now.Add(24*time.Hour))

	u, _ := m.GetUser(ctx, "1")
	if u.DailyUsed != 1 || !entitlement.SameDay(u.LastSignalDate, now.Add(24*time.Hour)) {
		t.Errorf("user = %+v", u)
	}
	if err := m.IncrementTrial(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestMemoryCreditPaymentOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	cp := payment.ConfirmedPayment{
		UserID: "42", Kind: "week", Amount: decimal.NewFromInt(650), Currency: "RUB",
		ExternalID: "ext-1", ConfirmedAt: now,
	}

	u, err := m.CreditPayment(ctx, cp, 7)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if u.Plan != entitlement.PlanActive || !u.SubscriptionEnd.Equal(now.Add(7*24*time.Hour)) {
		t.Errorf("user = %+v", u)
	}

	_, err = m.CreditPayment(ctx, cp, 7)
	if !errors.Is(err, ErrDuplicatePayment) || !errors.Is(err, payment.ErrAlreadyConfirmed) {
		t.Fatalf("second credit err = %v", err)
	}
	if err := m.RecordConfirmedPayment(ctx, cp); !errors.Is(err, ErrDuplicatePayment) {
		t.Errorf("record err = %v", err)
	}

	list, _ := m.ListPayments(ctx, "42")
	if len(list) != 1 {
		t.Errorf("payments = %d, want 1", len(list))
	}
}

func TestMemoryRenewalRestartsFromNow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	_, _ = m.UpdateSubscription(ctx, "1", "month", 30, now)
	u, _ := m.UpdateSubscription(ctx, "1", "week", 7, now.Add(24*time.Hour))
	if want := now.Add(8 * 24 * time.Hour); !u.SubscriptionEnd.Equal(want) {
		t.Errorf("end = %v, want %v", u.SubscriptionEnd, want)
	}
}

func TestMemoryExpireIfLapsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	_, _ = m.UpdateSubscription(ctx, "1", "week", 7, now)
	_, _ = m.UpdateSubscription(ctx, "2", "week", 7, now.Add(-8*24*time.Hour))

	expired, _ := m.ListExpiredUsers(ctx, now)
	if len(expired) != 1 || expired[0].ID != "2" {
		t.Fatalf("expired = %+v", expired)
	}
	ok, _ := m.ExpireIfLapsed(ctx, "2", now)
	if !ok {
		t.Fatal("lapsed user not revoked")
	}
	ok, _ = m.ExpireIfLapsed(ctx, "2", now)
	if ok {
		t.Error("second expire should be a no-op")
	}
	u, _ := m.GetUser(ctx, "2")
	if u.Plan != entitlement.PlanRevoked || u.SubscriptionEnd != nil {
		t.Errorf("user = %+v", u)
	}

	active, _ := m.ListActiveUsers(ctx, now)
	if len(active) != 1 || active[0].ID != "1" {
		t.Errorf("active = %+v", active)
	}
}

func TestMemoryStats(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	_, _ = m.UpsertUser(ctx, "trial", "", "")
	pay := func(user, kind, ext string, at time.Time) {
		t.Helper()
		cp := payment.ConfirmedPayment{UserID: user, Kind: kind, Amount: decimal.NewFromInt(1), ExternalID: ext, ConfirmedAt: at}
		if _, err := m.CreditPayment(ctx, cp, 30); err != nil {
			t.Fatal(err)
		}
	}
	pay("a", "month", "e1", now.Add(-time.Hour))
	pay("b", "week", "e2", now.Add(-2*time.Hour))
	pay("c", "month", "e3", now.Add(-3*time.Hour))
	pay("d", "week", "e4", now.Add(-40*24*time.Hour))

	s, err := m.Stats(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	want := Stats{ActiveUsers: 3, InactiveUsers: 2, WeeklyPurchases: 3, PopularPlan: "month"}
	if s != want {
		t.Errorf("stats = %+v, want %+v", s, want)
	}
}

func TestMemoryAdmins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.AddAdmin(ctx, "2")
	_ = m.AddAdmin(ctx, "1")
	_ = m.AddAdmin(ctx, "1")

	ids, _ := m.ListAdmins(ctx)
	if len(ids) != 2 || ids[0] != "1" {
		t.Errorf("admins = %v", ids)
	}
	if ok, _ := m.IsAdmin(ctx, "2"); !ok {
		t.Error("2 should be admin")
	}
	if err := m.RemoveAdmin(ctx, "2"); err != nil {
		t.Fatal(err)
	}
	if err := m.RemoveAdmin(ctx, "2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestMemoryRecordMatchOncePerKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	mt := match.Match{HomeTeam: "Arsenal", AwayTeam: "Chelsea", SourceID: "1xbet", StartTime: time.Date(2024, 6, 10, 18, 0, 10, 0, time.UTC)}
	again := mt
	again.HomeTeam = "ARSENAL "
	again.StartTime = mt.StartTime.Add(20 * time.Second)

	_ = m.RecordMatch(ctx, mt)
	_ = m.RecordMatch(ctx, again)
	if m.Matches() != 1 {
		t.Errorf("matches = %d, want 1", m.Matches())
	}
}
