package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qrconquest/conquest/internal/game"
)

// Enqueue records a capture intent in the offline queue and returns the
// assigned id.
//
// The record is stamped with the current time and a fresh idempotency
// key. Enqueue touches only local storage, so it succeeds even with the
// network completely unavailable. After a successful insert the wake
// hook is invoked to request a background flush; a wake failure is
// logged and swallowed - the record stays queued either way.
func (s *Store) Enqueue(baseID, playerID string, latitude, longitude float64) (int64, error) {
	return s.EnqueueContext(context.Background(), baseID, playerID, latitude, longitude)
}

// EnqueueContext records a capture intent with context support.
func (s *Store) EnqueueContext(ctx context.Context, baseID, playerID string, latitude, longitude float64) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	pc := &game.PendingCapture{
		IdempotencyKey: uuid.NewString(),
		BaseID:         baseID,
		PlayerID:       playerID,
		Latitude:       latitude,
		Longitude:      longitude,
		CreatedAt:      time.Now(),
	}
	if err := pc.Validate(); err != nil {
		return 0, fmt.Errorf("invalid capture: %w", err)
	}

	query := `
	INSERT INTO pending_captures (idempotency_key, base_id, player_id, latitude, longitude, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := s.conn.ExecContext(ctx, query,
		pc.IdempotencyKey,
		pc.BaseID,
		pc.PlayerID,
		pc.Latitude,
		pc.Longitude,
		pc.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue capture: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get capture id: %w", err)
	}

	if s.wake != nil {
		if err := s.wake(); err != nil {
			s.logger.Printf("Warning: failed to request background sync: %v", err)
		}
	}

	return id, nil
}

// InsertPending inserts a fully-formed pending capture, preserving its
// idempotency key and creation time. Used by queue import so that
// re-importing an exported entry keeps its identity for server-side
// dedup. Entries whose key is already present are skipped.
func (s *Store) InsertPending(ctx context.Context, pc *game.PendingCapture) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if err := pc.Validate(); err != nil {
		return 0, fmt.Errorf("invalid capture: %w", err)
	}
	if pc.IdempotencyKey == "" {
		pc.IdempotencyKey = uuid.NewString()
	}
	if pc.CreatedAt.IsZero() {
		pc.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO pending_captures (idempotency_key, base_id, player_id, latitude, longitude, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(idempotency_key) DO NOTHING
	`

	res, err := s.conn.ExecContext(ctx, query,
		pc.IdempotencyKey,
		pc.BaseID,
		pc.PlayerID,
		pc.Latitude,
		pc.Longitude,
		pc.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert capture: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check insert result: %w", err)
	}
	if affected == 0 {
		return 0, nil // already present
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get capture id: %w", err)
	}
	return id, nil
}

// ListPending returns all queued captures in storage order (oldest
// first). The queue is expected to stay small, so there is no
// pagination.
func (s *Store) ListPending() ([]*game.PendingCapture, error) {
	return s.ListPendingContext(context.Background())
}

// ListPendingContext returns all queued captures with context support.
func (s *Store) ListPendingContext(ctx context.Context) ([]*game.PendingCapture, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	query := `
	SELECT id, idempotency_key, base_id, player_id, latitude, longitude, created_at
	FROM pending_captures
	ORDER BY id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending captures: %w", err)
	}
	defer rows.Close()

	return s.scanPendingCaptures(rows)
}

// Remove deletes the queued capture with the given id.
//
// Returns nil if the id does not exist (idempotent). This matters
// because two overlapping flush passes may race on the same entry:
// whichever Remove runs first wins and the second is a harmless no-op.
func (s *Store) Remove(id int64) error {
	return s.RemoveContext(context.Background(), id)
}

// RemoveContext deletes a queued capture with context support.
func (s *Store) RemoveContext(ctx context.Context, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}

	query := `DELETE FROM pending_captures WHERE id = ?`
	_, err := s.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to remove capture %d: %w", id, err)
	}
	return nil
}

// PendingCount returns the number of queued captures.
func (s *Store) PendingCount() (int, error) {
	return s.PendingCountContext(context.Background())
}

// PendingCountContext returns the number of queued captures with context support.
func (s *Store) PendingCountContext(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	var count int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_captures").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending captures: %w", err)
	}
	return count, nil
}

// scanPendingCaptures is a helper to scan queue rows from query results.
func (s *Store) scanPendingCaptures(rows *sql.Rows) ([]*game.PendingCapture, error) {
	var captures []*game.PendingCapture

	for rows.Next() {
		var pc game.PendingCapture
		var createdAt string

		err := rows.Scan(
			&pc.ID,
			&pc.IdempotencyKey,
			&pc.BaseID,
			&pc.PlayerID,
			&pc.Latitude,
			&pc.Longitude,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending capture: %w", err)
		}

		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			pc.CreatedAt = t
		} else {
			// Queue rows are insert-only, so a garbled timestamp means
			// the row was corrupted after the fact.
			s.logger.Printf("Warning: capture %d has unparseable created_at %q: %v", pc.ID, createdAt, err)
		}

		captures = append(captures, &pc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending captures: %w", err)
	}

	return captures, nil
}
