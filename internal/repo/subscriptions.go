package repo

import (
	"context"
	"database/sql"

	"weekendwill/internal/domain"
)

// UpsertSubscription replaces the billing state for a user.
func (r Repo) UpsertSubscription(ctx context.Context, s domain.Subscription) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO subscriptions(user_id,status,plan,current_period_end,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET status=excluded.status, plan=excluded.plan, current_period_end=excluded.current_period_end, updated_at=excluded.updated_at`,
		s.UserID, s.Status, s.Plan, s.CurrentPeriodEnd, s.UpdatedAt)
	return err
}

func (r Repo) GetSubscription(ctx context.Context, userID string) (domain.Subscription, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT user_id,status,plan,current_period_end,updated_at FROM subscriptions WHERE user_id=?`, userID)
	var s domain.Subscription
	err := row.Scan(&s.UserID, &s.Status, &s.Plan, &s.CurrentPeriodEnd, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Subscription{}, ErrNotFound
	}
	return s, err
}
