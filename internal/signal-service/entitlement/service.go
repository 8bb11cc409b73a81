package entitlement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Store is the persistence the gate needs.
type Store interface {
	GetUser(ctx context.Context, userID string) (User, error)
	// ConsumeSignal checks and increments in one step. On denial it returns the current
	// row and false.
	ConsumeSignal(ctx context.Context, userID string, l Limits, now time.Time) (User, bool, error)
	UpdateSubscription(ctx context.Context, userID, kind string, days int, now time.Time) (User, error)
	Revoke(ctx context.Context, userID string) error
	// ExpireIfLapsed revokes only while the subscription is still active and past its end.
	ExpireIfLapsed(ctx context.Context, userID string, now time.Time) (bool, error)
	ListExpiredUsers(ctx context.Context, now time.Time) ([]User, error)
}

// Service gates signal delivery per user.
type Service struct {
	Store  Store
	Limits Limits
	Log    *zap.Logger
	Now    func() time.Time
}

func NewService(store Store, limits Limits, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Store: store, Limits: limits, Log: log, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Check reports whether the user may receive a signal now, without consuming quota.
// An observed expiry is persisted.
func (s *Service) Check(ctx context.Context, userID string) (Decision, error) {
	u, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	now := s.now()
	d := CheckAccess(u, s.Limits, now)
	if d.Reason == ReasonExpired {
		s.expire(ctx, u, now)
	}
	return d, nil
}

// Consume atomically checks access and spends one unit of quota.
func (s *Service) Consume(ctx context.Context, userID string) (Decision, error) {
	now := s.now()
	u, ok, err := s.Store.ConsumeSignal(ctx, userID, s.Limits, now)
	if err != nil {
		return Decision{}, fmt.Errorf("consume signal for %s: %w", userID, err)
	}
	if ok {
		return Decision{Allowed: true, User: u}, nil
	}

	d := CheckAccess(u, s.Limits, now)
	if d.Allowed {
		// quota was taken by a concurrent consumer between the update and the read
		d = Decision{Reason: limitReason(u), User: u}
	}
	if d.Reason == ReasonExpired {
		s.expire(ctx, u, now)
	}
	return d, nil
}

func (s *Service) expire(ctx context.Context, u User, now time.Time) {
	revoked, err := s.Store.ExpireIfLapsed(ctx, u.ID, now)
	if err != nil {
		s.Log.Warn("failed to revoke lapsed subscription", zap.String("user_id", u.ID), zap.Error(err))
		return
	}
	if revoked {
		s.Log.Info("subscription lapsed", zap.String("user_id", u.ID))
	}
}

// Grant activates a plan for days from now. Used by admins and by payment credit.
func (s *Service) Grant(ctx context.Context, userID, kind string, days int) (User, error) {
	if days <= 0 {
		return User{}, fmt.Errorf("grant %s: days must be positive, got %d", kind, days)
	}
	u, err := s.Store.UpdateSubscription(ctx, userID, kind, days, s.now())
	if err != nil {
		return User{}, fmt.Errorf("grant %s to %s: %w", kind, userID, err)
	}
	s.Log.Info("subscription granted", zap.String("user_id", userID), zap.String("kind", kind), zap.Int("days", days))
	return u, nil
}

func (s *Service) Revoke(ctx context.Context, userID string) error {
	if err := s.Store.Revoke(ctx, userID); err != nil {
		return fmt.Errorf("revoke %s: %w", userID, err)
	}
	s.Log.Info("subscription revoked", zap.String("user_id", userID))
	return nil
}

// ExpireLapsed revokes every lapsed subscription and returns the users it revoked.
func (s *Service) ExpireLapsed(ctx context.Context) ([]User, error) {
	now := s.now()
	users, err := s.Store.ListExpiredUsers(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list expired users: %w", err)
	}

	var revoked []User
	for _, u := range users {
		ok, err := s.Store.ExpireIfLapsed(ctx, u.ID, now)
		if err != nil {
			s.Log.Warn("failed to revoke lapsed subscription", zap.String("user_id", u.ID), zap.Error(err))
			continue
		}
		if ok {
			revoked = append(revoked, u)
		}
	}
	return revoked, nil
}
