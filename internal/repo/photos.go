package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"weekendwill/internal/domain"
)

func (r Repo) InsertPhoto(ctx context.Context, tx *sql.Tx, willID string, p domain.Photo) error {
	itemIDs, err := json.Marshal(p.ItemIDs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO photos(id,will_id,url,caption,item_ids_json,name,size,uploaded_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, willID, p.URL, p.Caption, string(itemIDs), p.Name, p.Size, p.UploadedAt)
	return err
}

func (r Repo) DeletePhoto(ctx context.Context, tx *sql.Tx, willID, photoID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE id=? AND will_id=?`, photoID, willID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListPhotos(ctx context.Context, willID string) ([]domain.Photo, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,url,caption,item_ids_json,name,size,uploaded_at FROM photos WHERE will_id=? ORDER BY uploaded_at, id`, willID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Photo
	for rows.Next() {
		var (
			p           domain.Photo
			itemIDsJSON string
		)
		if err := rows.Scan(&p.ID, &p.URL, &p.Caption, &itemIDsJSON, &p.Name, &p.Size, &p.UploadedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(itemIDsJSON), &p.ItemIDs); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
