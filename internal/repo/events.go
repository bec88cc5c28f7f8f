package repo

import (
	"context"
	"database/sql"

	"weekendwill/internal/domain"
)

const eventColumns = `id,ts,type,will_id,entity_kind,entity_id,actor_id,payload_json`

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.WillID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns up to limit events with id greater than afterID,
// oldest first. willID narrows to one will when set.
func (r Repo) EventsAfter(ctx context.Context, limit int, afterID int64, willID string) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id>?`
	args := []any{afterID}
	if willID != "" {
		query += ` AND will_id=?`
		args = append(args, willID)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEvents returns the most recent events, newest first.
func (r Repo) ListEvents(ctx context.Context, limit int, willID string) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if willID != "" {
		query += ` WHERE will_id=?`
		args = append(args, willID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LatestEventID returns the highest event id, 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context, willID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if willID != "" {
		query += ` WHERE will_id=?`
		args = append(args, willID)
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}
