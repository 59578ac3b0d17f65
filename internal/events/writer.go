package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"sprintbook/internal/db"
	"sprintbook/internal/domain"
)

// Event types written by the booking engine.
const (
	SlotsCommitted      = "assignment.slots.committed"
	AssignmentCreated   = "assignment.created"
	BookingConfirmed    = "temp.booking.confirmed"
	QuarterSetCurrent   = "quarter.current.set"
	TempsImported       = "temp.imported"
	QuarterTempsCleared = "temp.cleared"
)

// Writer appends to the events table inside the caller's transaction.
type Writer struct {
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, quarterID, entityKind, entityID, tribe string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, db.Rebind(w.Dialect, `INSERT INTO events(ts,type,quarter_id,entity_kind,entity_id,tribe,payload_json) VALUES (?,?,?,?,?,?,?)`),
		domain.FormatTime(w.Now()), evtType, nullable(quarterID), entityKind, nullable(entityID), tribe, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
