// Package api provides the HTTP client for the QR Conquest game server.
//
// The client distinguishes two failure kinds that downstream components
// treat very differently:
//
//   - transport failures (server unreachable, timeout): returned as
//     ordinary wrapped errors. The capture flow downgrades these to
//     "enqueue and retry later".
//   - server rejections (non-2xx with a reason): returned as *Error.
//     These are about game state, not connectivity, so retrying without
//     change repeats the same rejection; they are never queued.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qrconquest/conquest/internal/game"
)

// Error is a rejection carried in a non-2xx response.
type Error struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// IsRejection reports whether err (or anything it wraps) is a server
// rejection rather than a transport failure.
func IsRejection(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr)
}

// Client talks to the game server's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// CaptureRequest is the body of a capture submission.
type CaptureRequest struct {
	PlayerID       string  `json:"player_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

// CaptureBase submits a capture of the given base.
//
// The idempotency key (when set) is sent both in the body and as an
// Idempotency-Key header so the server can collapse duplicate
// submissions of the same queued intent. Any 2xx response is success;
// the body is not required to carry anything further.
func (c *Client) CaptureBase(ctx context.Context, baseID string, req CaptureRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode capture request: %w", err)
	}

	u := fmt.Sprintf("%s/api/bases/%s/capture", c.baseURL, url.PathEscape(baseID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build capture request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("capture request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return decodeError(resp)
}

// GetGame fetches the full game record including its teams and bases.
func (c *Client) GetGame(ctx context.Context, gameID string) (*game.Game, error) {
	u := fmt.Sprintf("%s/api/games/%s", c.baseURL, url.PathEscape(gameID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build game request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("game request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	var g game.Game
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to decode game: %w", err)
	}
	return &g, nil
}

// JoinTeamResponse is returned by a successful team join.
type JoinTeamResponse struct {
	PlayerID string `json:"player_id"`
	TeamID   string `json:"team_id"`
	GameID   string `json:"game_id"`
}

// JoinTeam registers a player on a team and returns the assigned
// player id.
func (c *Client) JoinTeam(ctx context.Context, teamID, playerName string) (*JoinTeamResponse, error) {
	body, err := json.Marshal(map[string]string{"player_name": playerName})
	if err != nil {
		return nil, fmt.Errorf("failed to encode join request: %w", err)
	}

	u := fmt.Sprintf("%s/api/teams/%s/join", c.baseURL, url.PathEscape(teamID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build join request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("join request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	var jr JoinTeamResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return nil, fmt.Errorf("failed to decode join response: %w", err)
	}
	return &jr, nil
}

// Ping checks whether the server is reachable. Used as the
// connectivity probe; a short timeout keeps a dead network from
// stalling the capture flow.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return nil
}

// decodeError composes the user-facing message from a non-2xx
// response: JSON {error} when possible, else the raw body text, else
// the HTTP status line.
func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(body) > 0 {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			return apiErr
		}
		if text := strings.TrimSpace(string(body)); text != "" {
			apiErr.Message = text
			return apiErr
		}
	}

	apiErr.Message = resp.Status
	return apiErr
}
