package repo

import (
	"context"
	"database/sql"

	"weekendwill/internal/domain"
)

func (r Repo) InsertChatMessage(ctx context.Context, tx *sql.Tx, willID string, m domain.ChatMessage) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO chat_messages(id,will_id,role,content,ts) VALUES (?,?,?,?,?)`,
		m.ID, willID, m.Role, m.Content, m.TS)
	return err
}

func (r Repo) ListChatMessages(ctx context.Context, willID string) ([]domain.ChatMessage, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,role,content,ts FROM chat_messages WHERE will_id=? ORDER BY ts, id`, willID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.TS); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
