// internal/database/events.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/nightstake/internal/models"
)

// InsertMatchEvents writes a batch of queued events in one transaction.
func (s *Store) InsertMatchEvents(ctx context.Context, recs []models.MatchEventRecord) error {
	if len(recs) == 0 {
		return nil
	}
	q := `
	INSERT INTO match_events (match_id, seq, event_type, phase, actor, payload, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range recs {
			payload := rec.Payload
			if len(payload) == 0 {
				payload = []byte("{}")
			}
			batch.Queue(q, rec.MatchID, rec.Seq, rec.EventType, rec.Phase, rec.Actor,
				payload, time.UnixMilli(rec.Timestamp))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert %d match events: %w", len(recs), err)
		}
		return nil
	})
}

// ListMatchEvents returns the recorded history of one match in order.
func (s *Store) ListMatchEvents(ctx context.Context, matchID uuid.UUID) ([]models.MatchEventRecord, error) {
	q := `
	SELECT match_id, seq, event_type, phase, actor, payload, occurred_at
	FROM match_events
	WHERE match_id = $1
	ORDER BY occurred_at, seq
	`
	rows, err := s.pool.Query(ctx, q, matchID)
	if err != nil {
		return nil, fmt.Errorf("query match events: %w", err)
	}
	defer rows.Close()

	out := []models.MatchEventRecord{}
	for rows.Next() {
		var (
			rec models.MatchEventRecord
			at  time.Time
		)
		if err := rows.Scan(&rec.MatchID, &rec.Seq, &rec.EventType, &rec.Phase, &rec.Actor, &rec.Payload, &at); err != nil {
			return nil, fmt.Errorf("scan match event: %w", err)
		}
		rec.Timestamp = at.UnixMilli()
		out = append(out, rec)
	}
	return out, rows.Err()
}
