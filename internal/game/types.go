// Package game provides the data structures shared between the QR Conquest
// client, its local store, and the remote game server.
package game

import (
	"fmt"
	"time"
)

// Game statuses as reported by the server.
const (
	StatusSetup  = "setup"
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Game represents a single QR Conquest game.
type Game struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"` // setup, active, ended
	HostName string `json:"host_name,omitempty"`

	Teams []Team `json:"teams,omitempty"`
	Bases []Base `json:"bases,omitempty"`
}

// Team represents a team within a game.
//
// QRCode is the decoded payload of the team's join code; it is empty
// for games that assign players to teams manually.
type Team struct {
	ID     string `json:"id"`
	GameID string `json:"game_id"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
	QRCode string `json:"qr_code,omitempty"`
	Score  int    `json:"score"`
}

// Base represents a capturable base within a game.
//
// QRCode is the decoded payload of the base's printed QR code and is
// unique across the game; it is the key used for offline QR resolution.
type Base struct {
	ID          string  `json:"id"`
	GameID      string  `json:"game_id"`
	Name        string  `json:"name"`
	QRCode      string  `json:"qr_code"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	OwnerTeamID string  `json:"owner_team_id,omitempty"`
	Points      int     `json:"points"`
}

// PendingCapture is a queued, not-yet-confirmed capture intent.
//
// Records are immutable once written: the store only ever inserts and
// deletes them, never updates. IdempotencyKey is assigned at enqueue
// time so the server can collapse duplicate submissions of the same
// intent (two overlapping flush passes may both submit an entry).
type PendingCapture struct {
	ID             int64     `json:"id"`
	IdempotencyKey string    `json:"idempotency_key"`
	BaseID         string    `json:"base_id"`
	PlayerID       string    `json:"player_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks that a PendingCapture carries everything the capture
// endpoint requires.
func (pc *PendingCapture) Validate() error {
	if pc.BaseID == "" {
		return fmt.Errorf("base_id is required")
	}
	if pc.PlayerID == "" {
		return fmt.Errorf("player_id is required")
	}
	if pc.Latitude < -90 || pc.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90 (got %v)", pc.Latitude)
	}
	if pc.Longitude < -180 || pc.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180 (got %v)", pc.Longitude)
	}
	return nil
}

// QR assignment statuses returned when resolving a scanned code.
const (
	QRStatusBase    = "base"
	QRStatusTeam    = "team"
	QRStatusUnknown = "unknown"
)

// QRAssignment is the result of resolving a decoded QR payload against
// known game state. Status is always one of the QRStatus constants;
// BaseID/TeamID are set only for the matching status.
type QRAssignment struct {
	Status string `json:"status"`
	BaseID string `json:"base_id,omitempty"`
	TeamID string `json:"team_id,omitempty"`
	GameID string `json:"game_id,omitempty"`
}

// CaptureOutcome distinguishes a confirmed capture from one accepted
// into the offline queue. The UI shows a different confirmation for
// each, so the distinction is part of the contract.
type CaptureOutcome int

const (
	// OutcomeCaptured means the server acknowledged the capture.
	OutcomeCaptured CaptureOutcome = iota
	// OutcomeQueued means the capture was recorded locally and will be
	// delivered when connectivity returns.
	OutcomeQueued
)

// String returns a human-readable representation of the outcome.
func (o CaptureOutcome) String() string {
	switch o {
	case OutcomeCaptured:
		return "captured"
	case OutcomeQueued:
		return "queued"
	default:
		return "unknown"
	}
}
