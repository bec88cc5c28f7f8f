package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"weekendwill/internal/config"
	"weekendwill/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// RunTx runs fn inside a transaction, retrying the whole transaction with
// bounded backoff when SQLite reports the database busy. Domain errors pass
// through unretried.
func (r Repo) RunTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	backoff := retry.WithMaxRetries(4, retry.NewExponential(25*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx, err := r.DB.BeginTx(ctx, nil)
		if err != nil {
			return retryIfBusy(err)
		}
		defer tx.Rollback()
		if err := fn(tx); err != nil {
			return retryIfBusy(err)
		}
		return retryIfBusy(tx.Commit())
	})
}

func retryIfBusy(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return retry.RetryableError(err)
	}
	return err
}

func scanWill(scan func(dest ...any) error) (domain.Will, error) {
	var (
		w                                domain.Will
		sectionsJSON, docsJSON, progJSON string
		witnessJSON, executedAt          sql.NullString
	)
	err := scan(&w.ID, &w.UserID, &w.Status, &w.StateCompliance,
		&sectionsJSON, &docsJSON, &progJSON, &witnessJSON,
		&w.Version, &w.CreatedAt, &w.UpdatedAt, &executedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if err := json.Unmarshal([]byte(sectionsJSON), &w.Sections); err != nil {
		return w, fmt.Errorf("decode sections for will %s: %w", w.ID, err)
	}
	if err := json.Unmarshal([]byte(docsJSON), &w.Documents); err != nil {
		return w, fmt.Errorf("decode documents for will %s: %w", w.ID, err)
	}
	if err := json.Unmarshal([]byte(progJSON), &w.Progress); err != nil {
		return w, fmt.Errorf("decode progress for will %s: %w", w.ID, err)
	}
	if witnessJSON.Valid && witnessJSON.String != "" {
		var wi domain.WitnessInfo
		if err := json.Unmarshal([]byte(witnessJSON.String), &wi); err != nil {
			return w, fmt.Errorf("decode witness info for will %s: %w", w.ID, err)
		}
		w.WitnessInfo = &wi
	}
	if executedAt.Valid {
		w.ExecutedAt = &executedAt.String
	}
	return w, nil
}

const willColumns = `id,user_id,status,state_compliance,sections_json,documents_json,progress_json,witness_json,version,created_at,updated_at,executed_at`

func encodeWill(w domain.Will) (sections, docs, prog string, witness any, err error) {
	s, err := json.Marshal(w.Sections)
	if err != nil {
		return "", "", "", nil, err
	}
	d, err := json.Marshal(w.Documents)
	if err != nil {
		return "", "", "", nil, err
	}
	p, err := json.Marshal(w.Progress)
	if err != nil {
		return "", "", "", nil, err
	}
	var wi any
	if w.WitnessInfo != nil {
		raw, err := json.Marshal(w.WitnessInfo)
		if err != nil {
			return "", "", "", nil, err
		}
		wi = string(raw)
	}
	return string(s), string(d), string(p), wi, nil
}

func (r Repo) InsertWill(ctx context.Context, tx *sql.Tx, w domain.Will) error {
	sections, docs, prog, witness, err := encodeWill(w)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO wills(`+willColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.UserID, w.Status, w.StateCompliance, sections, docs, prog, witness,
		w.Version, w.CreatedAt, w.UpdatedAt, nullable(w.ExecutedAt))
	return err
}

// ownerClause scopes a lookup to the owning user. An empty userID skips the
// scope for admin and CLI callers; for everyone else a wrong owner is
// indistinguishable from a missing will.
func ownerClause(userID string) (string, []any) {
	if userID == "" {
		return "", nil
	}
	return " AND user_id=?", []any{userID}
}

// GetWill loads a will without its chat and photo collections.
func (r Repo) GetWill(ctx context.Context, id, userID string) (domain.Will, error) {
	clause, args := ownerClause(userID)
	row := r.DB.QueryRowContext(ctx, `SELECT `+willColumns+` FROM wills WHERE id=?`+clause, append([]any{id}, args...)...)
	return scanWill(row.Scan)
}

// GetWillTx is GetWill inside the caller's transaction.
func (r Repo) GetWillTx(ctx context.Context, tx *sql.Tx, id, userID string) (domain.Will, error) {
	clause, args := ownerClause(userID)
	row := tx.QueryRowContext(ctx, `SELECT `+willColumns+` FROM wills WHERE id=?`+clause, append([]any{id}, args...)...)
	return scanWill(row.Scan)
}

// LoadWill loads a will with chat history and photos populated.
func (r Repo) LoadWill(ctx context.Context, id, userID string) (domain.Will, error) {
	w, err := r.GetWill(ctx, id, userID)
	if err != nil {
		return w, err
	}
	if w.ChatHistory, err = r.ListChatMessages(ctx, w.ID); err != nil {
		return w, err
	}
	if w.Photos, err = r.ListPhotos(ctx, w.ID); err != nil {
		return w, err
	}
	return w, nil
}

func (r Repo) ListWillsByUser(ctx context.Context, userID string) ([]domain.Will, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+willColumns+` FROM wills WHERE user_id=? ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Will
	for rows.Next() {
		w, err := scanWill(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// UpdateWill persists a mutated will with an optimistic-lock check: the row
// is only written when its stored version still equals expectedVersion.
// Zero rows affected on a will that was loadable means a concurrent writer
// won the race.
func (r Repo) UpdateWill(ctx context.Context, tx *sql.Tx, w domain.Will, expectedVersion int) error {
	sections, docs, prog, witness, err := encodeWill(w)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE wills SET status=?,state_compliance=?,sections_json=?,documents_json=?,progress_json=?,witness_json=?,version=?,updated_at=?,executed_at=? WHERE id=? AND version=?`,
		w.Status, w.StateCompliance, sections, docs, prog, witness,
		w.Version, w.UpdatedAt, nullable(w.ExecutedAt), w.ID, expectedVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r Repo) DeleteWill(ctx context.Context, tx *sql.Tx, id, userID string) error {
	clause, args := ownerClause(userID)
	res, err := tx.ExecContext(ctx, `DELETE FROM wills WHERE id=?`+clause, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// WillFilters narrows SearchWills. Zero values mean no filter.
type WillFilters struct {
	UserID string
	Status string
	State  string
	Page   int
	Limit  int
}

// SearchWills returns a page of wills plus the unpaged total.
func (r Repo) SearchWills(ctx context.Context, f WillFilters) ([]domain.Will, int, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.State != "" {
		clauses = append(clauses, "state_compliance=?")
		args = append(args, f.State)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM wills `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	query := `SELECT ` + willColumns + ` FROM wills ` + where + ` ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Will
	for rows.Next() {
		w, err := scanWill(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, w)
	}
	return res, total, rows.Err()
}

// UpsertComplianceConfig stores the single compliance config row.
func (r Repo) UpsertComplianceConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO compliance_configs(id,config_json,created_at,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, string(payload), now, now)
	return err
}

func (r Repo) GetComplianceConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM compliance_configs WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

func nullable(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
