// Package outbox journals draft domain events durably and relays them to a
// message broker. The journal is observational: draft progression never
// waits on it, and a full or failing journal degrades the draft rather
// than halting it.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/courtvision/draftroom/internal/draft/events"
)

// Record is one journaled event row.
type Record struct {
	ID        uuid.UUID
	DraftID   uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
	SentAt    *time.Time
}

const insertEventSQL = `
INSERT INTO draft_events_outbox (id, draft_id, event_type, payload, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`

const fetchUnsentSQL = `
SELECT id, draft_id, event_type, payload, created_at
FROM draft_events_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1
FOR UPDATE SKIP LOCKED`

const markSentSQL = `
UPDATE draft_events_outbox
SET sent_at = NOW()
WHERE id = ANY($1::uuid[]) AND sent_at IS NULL`

// Repository persists journal rows. It runs on database/sql so the relay
// worker can hold row locks across a fetch-publish-mark transaction.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertEvent journals one event. Re-inserting the same event ID is a no-op
// so the writer goroutine can retry blindly.
func (r *Repository) InsertEvent(ctx context.Context, ev events.Event) error {
	payload := pqtype.NullRawMessage{RawMessage: ev.Data, Valid: len(ev.Data) > 0}
	_, err := r.db.ExecContext(ctx, insertEventSQL, ev.ID, ev.DraftID, string(ev.Type), payload, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// RelayBatch fetches a batch of unsent rows, hands each to send, and marks
// the successful ones sent. Everything happens in one transaction with the
// rows locked, so a crash mid-batch re-delivers instead of losing events;
// consumers must tolerate duplicates.
func (r *Repository) RelayBatch(ctx context.Context, limit int32, send func(Record) error) (total, relayed int, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin outbox transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	records, err := fetchUnsentTx(ctx, tx, limit)
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return 0, 0, nil
	}

	var sentIDs []uuid.UUID
	for _, rec := range records {
		if sendErr := send(rec); sendErr != nil {
			continue
		}
		sentIDs = append(sentIDs, rec.ID)
	}

	if err := markSentTx(ctx, tx, sentIDs); err != nil {
		return len(records), 0, err
	}
	if err := tx.Commit(); err != nil {
		return len(records), 0, fmt.Errorf("failed to commit outbox transaction: %w", err)
	}
	committed = true
	return len(records), len(sentIDs), nil
}

func fetchUnsentTx(ctx context.Context, tx *sql.Tx, limit int32) ([]Record, error) {
	rows, err := tx.QueryContext(ctx, fetchUnsentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var payload pqtype.NullRawMessage
		if err := rows.Scan(&rec.ID, &rec.DraftID, &rec.EventType, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		if payload.Valid {
			rec.Payload = payload.RawMessage
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox rows: %w", err)
	}
	return records, nil
}

func markSentTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	if _, err := tx.ExecContext(ctx, markSentSQL, pq.Array(strs)); err != nil {
		return fmt.Errorf("failed to mark outbox events as sent: %w", err)
	}
	return nil
}
