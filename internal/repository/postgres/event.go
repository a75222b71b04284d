package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/lib/pq"
)

// EventRepo is the append-only delivery event store.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Append stores the event and claims the (message_id, kind) first-seen row
// in one transaction. The boolean reports whether this event won the claim.
func (r *EventRepo) Append(ctx context.Context, ev *domain.DeliveryEvent) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin append event: %w", err)
	}
	defer tx.Rollback()

	payload := []byte(ev.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sequence_delivery_events
			(id, message_id, kind, raw_kind, occurred_at, received_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, ev.MessageID, string(ev.Kind), ev.RawKind, ev.OccurredAt, ev.ReceivedAt, payload); err != nil {
		return false, fmt.Errorf("insert delivery event: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sequence_event_firsts (message_id, kind, event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, kind) DO NOTHING
	`, ev.MessageID, string(ev.Kind), ev.ID)
	if err != nil {
		return false, fmt.Errorf("insert event first: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit append event: %w", err)
	}
	return n == 1, nil
}

// ListByMessageIDs returns every stored event for the given messages.
func (r *EventRepo) ListByMessageIDs(ctx context.Context, messageIDs []string) ([]domain.DeliveryEvent, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, kind, raw_kind, occurred_at, received_at, payload
		FROM sequence_delivery_events
		WHERE message_id = ANY($1)
		ORDER BY occurred_at, received_at
	`, pq.Array(messageIDs))
	if err != nil {
		return nil, fmt.Errorf("list delivery events: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryEvent
	for rows.Next() {
		var (
			ev      domain.DeliveryEvent
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.MessageID, &ev.Kind, &ev.RawKind, &ev.OccurredAt, &ev.ReceivedAt, &payload); err != nil {
			return nil, fmt.Errorf("scan delivery event: %w", err)
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, rows.Err()
}
