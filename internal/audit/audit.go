// Package audit persists credential lifecycle events to the SQLite database.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ovpn-issuer/internal/registry"
)

// DefaultLimit bounds List when the caller asks for no limit.
const DefaultLimit = 100

// Event is one recorded lifecycle operation.
type Event struct {
	ID        string           `json:"id"`
	Identity  string           `json:"client"`
	Action    registry.Action  `json:"action"`
	Outcome   registry.Outcome `json:"outcome"`
	Detail    string           `json:"detail,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Recorder writes and reads events. It satisfies registry.EventRecorder.
type Recorder struct {
	db  *sql.DB
	now func() time.Time
}

var _ registry.EventRecorder = (*Recorder)(nil)

// NewRecorder returns a Recorder backed by db.
func NewRecorder(db *sql.DB) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	return &Recorder{db: db, now: time.Now}, nil
}

// Record stores one event.
func (r *Recorder) Record(ctx context.Context, identity string, action registry.Action, outcome registry.Outcome, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credential_events (id, identity, action, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), identity, string(action), string(outcome), detail, r.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("record %s event for %q: %w", action, identity, err)
	}
	return nil
}

// List returns the most recent events, newest first. A non-positive limit uses DefaultLimit.
func (r *Recorder) List(ctx context.Context, limit int) ([]Event, error) {
	return r.query(ctx, `
		SELECT id, identity, action, outcome, detail, created_at
		FROM credential_events
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, normalizeLimit(limit))
}

// ListForIdentity is List restricted to one client.
func (r *Recorder) ListForIdentity(ctx context.Context, identity string, limit int) ([]Event, error) {
	return r.query(ctx, `
		SELECT id, identity, action, outcome, detail, created_at
		FROM credential_events
		WHERE identity = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, identity, normalizeLimit(limit))
}

func (r *Recorder) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var (
			event     Event
			action    string
			outcome   string
			createdAt int64
		)
		if err := rows.Scan(&event.ID, &event.Identity, &action, &outcome, &event.Detail, &createdAt); err != nil {
			return nil, err
		}
		event.Action = registry.Action(action)
		event.Outcome = registry.Outcome(outcome)
		event.CreatedAt = time.Unix(createdAt, 0).UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
