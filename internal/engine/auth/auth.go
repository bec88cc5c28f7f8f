package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ForbiddenError indicates the caller may not act on the resource.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// PremiumRequiredError indicates a feature gated behind an active
// subscription.
type PremiumRequiredError struct {
	Feature string
}

func (e PremiumRequiredError) Error() string {
	return fmt.Sprintf("feature %s requires an active subscription", e.Feature)
}

// Service answers subscription questions backed by SQL.
type Service struct {
	DB *sql.DB
}

// ActiveSubscriber reports whether the user has an active subscription whose
// period has not lapsed. A missing row means free tier.
func (s Service) ActiveSubscriber(ctx context.Context, userID string, now time.Time) (bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT status, current_period_end FROM subscriptions WHERE user_id=?`, userID)
	var status, periodEnd string
	err := row.Scan(&status, &periodEnd)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if status != "active" {
		return false, nil
	}
	if periodEnd == "" {
		return true, nil
	}
	end, err := time.Parse(time.RFC3339, periodEnd)
	if err != nil {
		return false, nil
	}
	return end.After(now), nil
}
