package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types emitted by the engine. Outbound webhooks filter on these.
const (
	WillCreated      = "will.created"
	WillUpdated      = "will.updated"
	WillCompleted    = "will.completed"
	WillExecuted     = "will.executed"
	WillDeleted      = "will.deleted"
	DocumentAttached = "document.attached"
	PhotoAdded       = "photo.added"
	ChatAppended     = "chat.appended"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records one audit event inside the caller's transaction so the
// event commits or rolls back with the write it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, willID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,will_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, willID, entityKind, entityID, actorID, string(data))
	return err
}
