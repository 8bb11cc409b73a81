package entitlement

import (
	"errors"
	"time"
)

type Plan string

const (
	PlanTrial   Plan = "trial"
	PlanActive  Plan = "active"
	PlanRevoked Plan = "revoked"
)

// ErrUnknownUser is returned by stores for ids never seen.
var ErrUnknownUser = errors.New("unknown user")

// User is the quota and subscription state of one subscriber.
type User struct {
	ID               string     `json:"id"`
	Username         string     `json:"username,omitempty"`
	FirstName        string     `json:"first_name,omitempty"`
	Plan             Plan       `json:"plan"`
	SubscriptionKind string     `json:"subscription_kind,omitempty"`
	SubscriptionEnd  *time.Time `json:"subscription_end,omitempty"`
	TrialUsed        int        `json:"trial_used"`
	DailyUsed        int        `json:"daily_used"`
	LastSignalDate   time.Time  `json:"last_signal_date"`
	CreatedAt        time.Time  `json:"created_at"`
}

type Limits struct {
	Trial int
	Daily int
}

// Reason explains a denial. Empty when allowed.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonTrialExhausted Reason = "trial_exhausted"
	ReasonDailyLimit     Reason = "daily_limit"
	ReasonExpired        Reason = "expired"
	ReasonRevoked        Reason = "revoked"
)

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
	User    User   `json:"user"`
}

// SameDay reports whether the stored signal date falls on now's calendar day.
func SameDay(last, now time.Time) bool {
	if last.IsZero() {
		return false
	}
	return last.Format(time.DateOnly) == now.Format(time.DateOnly)
}

// Day returns now's calendar date as stored in last_signal_date.
func Day(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Lapsed reports whether an active subscription ended before now.
func (u User) Lapsed(now time.Time) bool {
	return u.Plan == PlanActive && u.SubscriptionEnd != nil && now.After(*u.SubscriptionEnd)
}

// CheckAccess is the read-only gate. It never mutates u.
func CheckAccess(u User, l Limits, now time.Time) Decision {
	d := Decision{User: u}
	switch u.Plan {
	case PlanTrial:
		if u.TrialUsed < l.Trial {
			d.Allowed = true
		} else {
			d.Reason = ReasonTrialExhausted
		}
	case PlanActive:
		switch {
		case u.Lapsed(now):
			d.Reason = ReasonExpired
		case !SameDay(u.LastSignalDate, now) || u.DailyUsed < l.Daily:
			d.Allowed = true
		default:
			d.Reason = ReasonDailyLimit
		}
	default:
		d.Reason = ReasonRevoked
	}
	return d
}

func limitReason(u User) Reason {
	switch u.Plan {
	case PlanTrial:
		return ReasonTrialExhausted
	case PlanActive:
		return ReasonDailyLimit
	}
	return ReasonRevoked
}

// Apply performs the increment CheckAccess allowed. Callers must hold whatever lock
// makes check and increment atomic.
func Apply(u User, now time.Time) User {
	switch u.Plan {
	case PlanTrial:
		u.TrialUsed++
	case PlanActive:
		if SameDay(u.LastSignalDate, now) {
			u.DailyUsed++
		} else {
			u.DailyUsed = 1
			u.LastSignalDate = Day(now)
		}
	}
	return u
}
