package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Flush journal outcomes.
const (
	// OutcomeDelivered means the entry was acknowledged by the server
	// and removed from the queue.
	OutcomeDelivered = "delivered"
	// OutcomePurged means the entry was rejected for a terminal state
	// reason and removed without delivery.
	OutcomePurged = "purged"
)

// SyncLogEntry records the final disposition of one queued capture.
//
// Entries are append-only. They exist so that a purged capture (base
// deleted, game ended) is still visible to the player after the queue
// entry itself is gone.
type SyncLogEntry struct {
	ID        int64     `json:"id"`
	CaptureID int64     `json:"capture_id"`
	BaseID    string    `json:"base_id"`
	Outcome   string    `json:"outcome"` // delivered, purged
	Detail    string    `json:"detail,omitempty"`
	FlushedAt time.Time `json:"flushed_at"`
}

// AppendSyncLog records a flush outcome in the journal.
func (s *Store) AppendSyncLog(ctx context.Context, captureID int64, baseID, outcome, detail string) error {
	if err := s.ready(); err != nil {
		return err
	}

	query := `
	INSERT INTO sync_log (capture_id, base_id, outcome, detail, flushed_at)
	VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.conn.ExecContext(ctx, query,
		captureID, baseID, outcome, detail, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}
	return nil
}

// ListSyncLog returns journal entries, newest first. limit <= 0 returns
// everything.
func (s *Store) ListSyncLog(ctx context.Context, limit int) ([]*SyncLogEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	query := `
	SELECT id, capture_id, base_id, outcome, detail, flushed_at
	FROM sync_log
	ORDER BY id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync log: %w", err)
	}
	defer rows.Close()

	var entries []*SyncLogEntry
	for rows.Next() {
		var e SyncLogEntry
		var detail sql.NullString
		var flushedAt string
		if err := rows.Scan(&e.ID, &e.CaptureID, &e.BaseID, &e.Outcome, &detail, &flushedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		e.Detail = detail.String
		if t, err := time.Parse(time.RFC3339Nano, flushedAt); err == nil {
			e.FlushedAt = t
		} else {
			s.logger.Printf("Warning: sync log entry %d has unparseable flushed_at %q: %v", e.ID, flushedAt, err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log: %w", err)
	}

	return entries, nil
}
