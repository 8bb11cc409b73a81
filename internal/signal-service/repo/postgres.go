package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/football-signals/internal/signal-service/entitlement"
	"github.com/radieske/football-signals/internal/signal-service/match"
	"github.com/radieske/football-signals/internal/signal-service/payment"
)

// Postgres is the durable store for users, admins, matches and payments.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const userCols = `user_id, username, first_name, plan, subscription_kind, subscription_end,
	trial_used, daily_used, last_signal_date, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (entitlement.User, error) {
	var (
		u    entitlement.User
		plan string
		end  sql.NullTime
		last sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &plan, &u.SubscriptionKind, &end,
		&u.TrialUsed, &u.DailyUsed, &last, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entitlement.User{}, ErrNotFound
		}
		return entitlement.User{}, err
	}
	u.Plan = entitlement.Plan(plan)
	if end.Valid {
		t := end.Time
		u.SubscriptionEnd = &t
	}
	if last.Valid {
		u.LastSignalDate = last.Time
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func day(now time.Time) string { return now.Format(time.DateOnly) }

// UpsertUser registers a user on first contact and refreshes names afterwards.
func (p *Postgres) UpsertUser(ctx context.Context, userID, username, firstName string) (entitlement.User, error) {
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO users (user_id, username, first_name) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username, first_name = EXCLUDED.first_name, updated_at = now()
		RETURNING `+userCols, userID, username, firstName)
	return scanUser(row)
}

func (p *Postgres) GetUser(ctx context.Context, userID string) (entitlement.User, error) {
	return scanUser(p.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE user_id = $1`, userID))
}

// ConsumeSignal checks and increments in a single conditional UPDATE, so two concurrent
// deliveries can never both take the last unit of quota.
func (p *Postgres) ConsumeSignal(ctx context.Context, userID string, l entitlement.Limits, now time.Time) (entitlement.User, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE users SET
			trial_used = CASE WHEN plan = 'trial' THEN trial_used + 1 ELSE trial_used END,
			daily_used = CASE
				WHEN plan <> 'active' THEN daily_used
				WHEN last_signal_date IS NOT DISTINCT FROM $3::date THEN daily_used + 1
				ELSE 1 END,
			last_signal_date = CASE WHEN plan = 'active' THEN $3::date ELSE last_signal_date END,
			updated_at = now()
		WHERE user_id = $1 AND (
			(plan = 'trial' AND trial_used < $4)
			OR (plan = 'active'
				AND (subscription_end IS NULL OR subscription_end >= $2)
				AND (last_signal_date IS DISTINCT FROM $3::date OR daily_used < $5))
		)
		RETURNING `+userCols, userID, now, day(now), l.Trial, l.Daily)

	u, err := scanUser(row)
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return entitlement.User{}, false, fmt.Errorf("consume signal: %w", err)
	}

	// nothing updated: either denied or unknown
	u, err = p.GetUser(ctx, userID)
	if err != nil {
		return entitlement.User{}, false, err
	}
	return u, false, nil
}

func (p *Postgres) IncrementTrial(ctx context.Context, userID string) error {
	return p.execOne(ctx, `UPDATE users SET trial_used = trial_used + 1, updated_at = now() WHERE user_id = $1`, userID)
}

// IncrementDaily bumps the daily counter, restarting it at 1 on a new day.
func (p *Postgres) IncrementDaily(ctx context.Context, userID string, now time.Time) error {
	return p.execOne(ctx, `
		UPDATE users SET
			daily_used = CASE WHEN last_signal_date IS NOT DISTINCT FROM $2::date THEN daily_used + 1 ELSE 1 END,
			last_signal_date = $2::date,
			updated_at = now()
		WHERE user_id = $1`, userID, day(now))
}

const activateSQL = `
	INSERT INTO users (user_id, plan, subscription_kind, subscription_end, daily_used)
	VALUES ($1, 'active', $2, $3, 0)
	ON CONFLICT (user_id) DO UPDATE
	SET plan = 'active', subscription_kind = EXCLUDED.subscription_kind,
		subscription_end = EXCLUDED.subscription_end, daily_used = 0, updated_at = now()
	RETURNING ` + userCols

// UpdateSubscription sets end = now + days. Renewals restart from now.
func (p *Postgres) UpdateSubscription(ctx context.Context, userID, kind string, days int, now time.Time) (entitlement.User, error) {
	end := now.Add(time.Duration(days) * 24 * time.Hour)
	return scanUser(p.db.QueryRowContext(ctx, activateSQL, userID, kind, end))
}

func (p *Postgres) Revoke(ctx context.Context, userID string) error {
	return p.execOne(ctx, `UPDATE users SET plan = 'revoked', subscription_end = NULL, updated_at = now() WHERE user_id = $1`, userID)
}

func (p *Postgres) ExpireIfLapsed(ctx context.Context, userID string, now time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET plan = 'revoked', subscription_end = NULL, updated_at = now()
		WHERE user_id = $1 AND plan = 'active' AND subscription_end < $2`, userID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *Postgres) ListExpiredUsers(ctx context.Context, now time.Time) ([]entitlement.User, error) {
	return p.queryUsers(ctx, `SELECT `+userCols+` FROM users
		WHERE plan = 'active' AND subscription_end < $1 ORDER BY user_id`, now)
}

func (p *Postgres) ListActiveUsers(ctx context.Context, now time.Time) ([]entitlement.User, error) {
	return p.queryUsers(ctx, `SELECT `+userCols+` FROM users
		WHERE plan = 'active' AND (subscription_end IS NULL OR subscription_end >= $1) ORDER BY user_id`, now)
}

func (p *Postgres) queryUsers(ctx context.Context, q string, args ...any) ([]entitlement.User, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entitlement.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *Postgres) execOne(ctx context.Context, q string, args ...any) error {
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordConfirmedPayment inserts a payment row. A repeated external id yields ErrDuplicatePayment.
func (p *Postgres) RecordConfirmedPayment(ctx context.Context, cp payment.ConfirmedPayment) error {
	_, err := p.db.ExecContext(ctx, insertPaymentSQL,
		cp.UserID, cp.Kind, cp.Amount.String(), cp.Currency, cp.ExternalID, cp.ConfirmedAt)
	if isUniqueViolation(err) {
		return ErrDuplicatePayment
	}
	return err
}

const insertPaymentSQL = `
	INSERT INTO confirmed_payments (user_id, subscription_kind, amount, currency, external_payment_id, confirmed_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

// CreditPayment records the payment and activates the subscription in one transaction.
func (p *Postgres) CreditPayment(ctx context.Context, cp payment.ConfirmedPayment, days int) (entitlement.User, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return entitlement.User{}, err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, insertPaymentSQL,
		cp.UserID, cp.Kind, cp.Amount.String(), cp.Currency, cp.ExternalID, cp.ConfirmedAt); err != nil {
		if isUniqueViolation(err) {
			return entitlement.User{}, ErrDuplicatePayment
		}
		return entitlement.User{}, err
	}

	end := cp.ConfirmedAt.Add(time.Duration(days) * 24 * time.Hour)
	u, err := scanUser(tx.QueryRowContext(ctx, activateSQL, cp.UserID, cp.Kind, end))
	if err != nil {
		return entitlement.User{}, err
	}

	if err = tx.Commit(); err != nil {
		return entitlement.User{}, err
	}
	return u, nil
}

func (p *Postgres) HasConfirmedPayment(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM confirmed_payments WHERE external_payment_id = $1)`, externalID).Scan(&exists)
	return exists, err
}

// ListPayments returns a user's confirmed payments, newest first.
func (p *Postgres) ListPayments(ctx context.Context, userID string) ([]payment.ConfirmedPayment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_id, subscription_kind, amount::text, currency, external_payment_id, confirmed_at
		FROM confirmed_payments WHERE user_id = $1 ORDER BY confirmed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payment.ConfirmedPayment
	for rows.Next() {
		var (
			cp     payment.ConfirmedPayment
			amount string
		)
		if err := rows.Scan(&cp.UserID, &cp.Kind, &amount, &cp.Currency, &cp.ExternalID, &cp.ConfirmedAt); err != nil {
			return nil, err
		}
		if cp.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("payment %s amount %q: %w", cp.ExternalID, amount, err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Stats counts active and inactive users and the last week's purchases.
func (p *Postgres) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var s Stats
	if err := p.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE plan = 'active' AND (subscription_end IS NULL OR subscription_end >= $1)),
			COUNT(*) FILTER (WHERE NOT (plan = 'active' AND (subscription_end IS NULL OR subscription_end >= $1)))
		FROM users`, now).Scan(&s.ActiveUsers, &s.InactiveUsers); err != nil {
		return Stats{}, fmt.Errorf("count users: %w", err)
	}

	since := now.Add(-statsWindow)
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM confirmed_payments WHERE confirmed_at >= $1`, since).Scan(&s.WeeklyPurchases); err != nil {
		return Stats{}, fmt.Errorf("count purchases: %w", err)
	}

	err := p.db.QueryRowContext(ctx, `
		SELECT subscription_kind FROM confirmed_payments WHERE confirmed_at >= $1
		GROUP BY subscription_kind ORDER BY COUNT(*) DESC, subscription_kind LIMIT 1`, since).Scan(&s.PopularPlan)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Stats{}, fmt.Errorf("popular plan: %w", err)
	}
	return s, nil
}

func (p *Postgres) AddAdmin(ctx context.Context, userID string) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO admins (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, userID)
	return err
}

func (p *Postgres) RemoveAdmin(ctx context.Context, userID string) error {
	return p.execOne(ctx, `DELETE FROM admins WHERE user_id = $1`, userID)
}

func (p *Postgres) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var ok bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE user_id = $1)`, userID).Scan(&ok)
	return ok, err
}

func (p *Postgres) ListAdmins(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT user_id FROM admins ORDER BY created_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RecordMatch stores an accepted match once per key.
func (p *Postgres) RecordMatch(ctx context.Context, m match.Match) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO matches (home_team, away_team, league, source_id, odds_a, odds_b, start_time, match_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (match_key) DO NOTHING`,
		m.HomeTeam, m.AwayTeam, m.League, m.SourceID, m.OddsA, m.OddsB, m.StartTime, m.Key().String())
	return err
}

// RecordSentSignal logs a delivery. Redelivered events are ignored.
func (p *Postgres) RecordSentSignal(ctx context.Context, s SentSignal) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sent_signals (delivery_id, user_id, kind, match_key, sent_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (delivery_id) DO NOTHING`, s.DeliveryID, s.UserID, s.Kind, s.MatchKey, s.SentAt)
	return err
}
