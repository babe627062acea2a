package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/qrconquest/conquest/internal/game"
)

// PutGameSnapshot overwrites the cached record for a game and
// wholesale-replaces its team and base collections.
//
// This is a full replace, not a merge: the cache always reflects the
// last successful live fetch and nothing else. Every record is stamped
// with the current write time.
func (s *Store) PutGameSnapshot(ctx context.Context, g *game.Game) error {
	if err := s.ready(); err != nil {
		return err
	}
	if g.ID == "" {
		return fmt.Errorf("game id is required")
	}

	now := time.Now().Format(time.RFC3339Nano)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsertGame := `
	INSERT INTO cached_games (id, name, status, host_name, last_updated)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		status = excluded.status,
		host_name = excluded.host_name,
		last_updated = excluded.last_updated
	`
	if _, err := tx.ExecContext(ctx, upsertGame, g.ID, g.Name, g.Status, g.HostName, now); err != nil {
		return fmt.Errorf("failed to cache game %s: %w", g.ID, err)
	}

	// Wholesale replace: clear before re-inserting
	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_teams WHERE game_id = ?", g.ID); err != nil {
		return fmt.Errorf("failed to clear cached teams: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_bases WHERE game_id = ?", g.ID); err != nil {
		return fmt.Errorf("failed to clear cached bases: %w", err)
	}

	insertTeam := `
	INSERT INTO cached_teams (id, game_id, name, color, qr_code, score, last_updated)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, t := range g.Teams {
		if _, err := tx.ExecContext(ctx, insertTeam, t.ID, g.ID, t.Name, t.Color, t.QRCode, t.Score, now); err != nil {
			return fmt.Errorf("failed to cache team %s: %w", t.ID, err)
		}
	}

	insertBase := `
	INSERT INTO cached_bases (id, game_id, name, qr_code, latitude, longitude, owner_team_id, points, last_updated)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, b := range g.Bases {
		if _, err := tx.ExecContext(ctx, insertBase, b.ID, g.ID, b.Name, b.QRCode, b.Latitude, b.Longitude, b.OwnerTeamID, b.Points, now); err != nil {
			return fmt.Errorf("failed to cache base %s: %w", b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return nil
}

// GetGameSnapshot assembles the cached game record with its teams and
// bases. Returns ErrNotFound if no snapshot was ever cached for the id;
// callers treat that as "no data available", not as an error to retry.
// The returned time is when the snapshot was last written.
func (s *Store) GetGameSnapshot(ctx context.Context, gameID string) (*game.Game, time.Time, error) {
	if err := s.ready(); err != nil {
		return nil, time.Time{}, err
	}

	var g game.Game
	var hostName sql.NullString
	var lastUpdated string

	row := s.conn.QueryRowContext(ctx,
		"SELECT id, name, status, host_name, last_updated FROM cached_games WHERE id = ?", gameID)
	if err := row.Scan(&g.ID, &g.Name, &g.Status, &hostName, &lastUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("failed to read cached game: %w", err)
	}
	g.HostName = hostName.String

	updatedAt, _ := time.Parse(time.RFC3339Nano, lastUpdated)

	teams, err := s.cachedTeams(ctx, gameID)
	if err != nil {
		return nil, time.Time{}, err
	}
	g.Teams = teams

	bases, err := s.cachedBases(ctx, gameID)
	if err != nil {
		return nil, time.Time{}, err
	}
	g.Bases = bases

	return &g, updatedAt, nil
}

// LookupQRCode resolves a decoded QR payload against the cached bases
// and team join codes. A code with no cached match resolves to
// QRStatusUnknown.
func (s *Store) LookupQRCode(ctx context.Context, code string) (*game.QRAssignment, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var baseID, gameID string
	row := s.conn.QueryRowContext(ctx,
		"SELECT id, game_id FROM cached_bases WHERE qr_code = ?", code)
	err := row.Scan(&baseID, &gameID)
	if err == nil {
		return &game.QRAssignment{
			Status: game.QRStatusBase,
			BaseID: baseID,
			GameID: gameID,
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up QR code: %w", err)
	}

	var teamID string
	row = s.conn.QueryRowContext(ctx,
		"SELECT id, game_id FROM cached_teams WHERE qr_code = ? AND qr_code != ''", code)
	err = row.Scan(&teamID, &gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return &game.QRAssignment{Status: game.QRStatusUnknown}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up QR code: %w", err)
	}

	return &game.QRAssignment{
		Status: game.QRStatusTeam,
		TeamID: teamID,
		GameID: gameID,
	}, nil
}

// GetBaseByID returns a cached base record.
func (s *Store) GetBaseByID(ctx context.Context, baseID string) (*game.Base, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var b game.Base
	var owner sql.NullString
	row := s.conn.QueryRowContext(ctx, `
	SELECT id, game_id, name, qr_code, latitude, longitude, owner_team_id, points
	FROM cached_bases WHERE id = ?`, baseID)
	err := row.Scan(&b.ID, &b.GameID, &b.Name, &b.QRCode, &b.Latitude, &b.Longitude, &owner, &b.Points)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached base: %w", err)
	}
	b.OwnerTeamID = owner.String

	return &b, nil
}

func (s *Store) cachedTeams(ctx context.Context, gameID string) ([]game.Team, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, game_id, name, color, qr_code, score
	FROM cached_teams WHERE game_id = ? ORDER BY name ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached teams: %w", err)
	}
	defer rows.Close()

	var teams []game.Team
	for rows.Next() {
		var t game.Team
		var color sql.NullString
		if err := rows.Scan(&t.ID, &t.GameID, &t.Name, &color, &t.QRCode, &t.Score); err != nil {
			return nil, fmt.Errorf("failed to scan cached team: %w", err)
		}
		t.Color = color.String
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cached teams: %w", err)
	}
	return teams, nil
}

func (s *Store) cachedBases(ctx context.Context, gameID string) ([]game.Base, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, game_id, name, qr_code, latitude, longitude, owner_team_id, points
	FROM cached_bases WHERE game_id = ? ORDER BY name ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached bases: %w", err)
	}
	defer rows.Close()

	var bases []game.Base
	for rows.Next() {
		var b game.Base
		var owner sql.NullString
		if err := rows.Scan(&b.ID, &b.GameID, &b.Name, &b.QRCode, &b.Latitude, &b.Longitude, &owner, &b.Points); err != nil {
			return nil, fmt.Errorf("failed to scan cached base: %w", err)
		}
		b.OwnerTeamID = owner.String
		bases = append(bases, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cached bases: %w", err)
	}
	return bases, nil
}
