// Package session implements the foreground player flows: capturing
// bases, resolving scanned QR codes, joining teams, and loading game
// state with an offline fallback.
//
// The capture flow is the single decision point for "submit now vs.
// queue for later". The online/offline signal is a hint, not a
// guarantee: a live submission that fails at the transport level still
// falls back to enqueueing, so a false-positive "online" never loses a
// capture attempt.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/qrconquest/conquest/internal/api"
	"github.com/qrconquest/conquest/internal/game"
	"github.com/qrconquest/conquest/internal/store"
)

// ErrNotOnTeam is returned when a capture is attempted before the
// player has joined a team. It is a local validation failure and never
// touches storage or the network.
var ErrNotOnTeam = errors.New("session: join a team first")

// Probe answers the "is the device currently online" question.
type Probe interface {
	// Online reports whether the server currently looks reachable.
	Online(ctx context.Context) bool
}

// PingProbe implements Probe with a health-endpoint ping.
type PingProbe struct {
	Client *api.Client
}

// Online implements Probe.
func (p *PingProbe) Online(ctx context.Context) bool {
	return p.Client.Ping(ctx) == nil
}

// Identity is the locally-held player identity. PlayerID and TeamID
// are assigned when the player joins a team.
type Identity struct {
	PlayerID string
	TeamID   string
	GameID   string
}

// CaptureResult reports how a capture attempt was resolved.
type CaptureResult struct {
	Outcome game.CaptureOutcome
	// QueueID is the pending-capture id when Outcome is OutcomeQueued.
	QueueID int64
}

// Session wires the remote client, the local store, and the player
// identity together for the foreground flows.
type Session struct {
	client   *api.Client
	store    *store.Store
	probe    Probe
	identity Identity
	logger   *log.Logger
}

// New creates a Session. If probe is nil, a ping probe against client
// is used. If logger is nil, a default logger writing to stderr is used.
func New(client *api.Client, st *store.Store, probe Probe, identity Identity, logger *log.Logger) *Session {
	if probe == nil {
		probe = &PingProbe{Client: client}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &Session{
		client:   client,
		store:    st,
		probe:    probe,
		identity: identity,
		logger:   logger,
	}
}

// Capture attempts to capture the base at the given coordinates.
//
// Online: the capture is submitted live. A server rejection (out of
// range, already owned, game not active) is returned as-is and never
// queued - retrying would repeat the same rejection. A transport
// failure downgrades to the offline path.
//
// Offline (or after a transport failure): the intent is recorded in
// the pending queue and the result reports OutcomeQueued so the caller
// can show a deferred confirmation instead of "captured".
func (s *Session) Capture(ctx context.Context, baseID string, latitude, longitude float64) (*CaptureResult, error) {
	if s.identity.PlayerID == "" || s.identity.TeamID == "" {
		return nil, ErrNotOnTeam
	}

	if s.probe.Online(ctx) {
		err := s.client.CaptureBase(ctx, baseID, api.CaptureRequest{
			PlayerID:  s.identity.PlayerID,
			Latitude:  latitude,
			Longitude: longitude,
		})
		if err == nil {
			// Read-your-writes: pull fresh scores into the cache so the
			// local view reflects the capture. Best-effort.
			if s.identity.GameID != "" {
				if _, _, err := s.LoadGame(ctx, s.identity.GameID); err != nil {
					s.logger.Printf("Warning: failed to refresh game after capture: %v", err)
				}
			}
			return &CaptureResult{Outcome: game.OutcomeCaptured}, nil
		}
		if api.IsRejection(err) {
			return nil, err
		}
		s.logger.Printf("Live capture failed at transport level, queueing: %v", err)
	}

	id, err := s.store.EnqueueContext(ctx, baseID, s.identity.PlayerID, latitude, longitude)
	if err != nil {
		return nil, fmt.Errorf("failed to queue capture: %w", err)
	}

	return &CaptureResult{Outcome: game.OutcomeQueued, QueueID: id}, nil
}

// LoadGame fetches the game live, refreshing the cache on success. On
// a transport-level failure it falls back to the cached snapshot; the
// returned time is the snapshot's write time (zero for a live result).
// A server rejection is returned directly - the cache is a network
// fallback, not an error masker.
func (s *Session) LoadGame(ctx context.Context, gameID string) (*game.Game, time.Time, error) {
	g, err := s.client.GetGame(ctx, gameID)
	if err == nil {
		if cacheErr := s.store.PutGameSnapshot(ctx, g); cacheErr != nil {
			s.logger.Printf("Warning: failed to cache game snapshot: %v", cacheErr)
		}
		return g, time.Time{}, nil
	}
	if api.IsRejection(err) {
		return nil, time.Time{}, err
	}

	s.logger.Printf("Live fetch failed, consulting cache: %v", err)
	cached, updatedAt, cacheErr := s.store.GetGameSnapshot(ctx, gameID)
	if cacheErr != nil {
		if errors.Is(cacheErr, store.ErrNotFound) {
			return nil, time.Time{}, fmt.Errorf("game unavailable and not cached: %w", err)
		}
		return nil, time.Time{}, cacheErr
	}
	return cached, updatedAt, nil
}

// ResolveQR resolves a decoded QR payload against the cached bases and
// team join codes.
// Works fully offline; an unmatched code resolves to QRStatusUnknown.
func (s *Session) ResolveQR(ctx context.Context, code string) (*game.QRAssignment, error) {
	return s.store.LookupQRCode(ctx, code)
}

// Join registers the player on a team and returns the updated
// identity. The session's identity is replaced on success.
func (s *Session) Join(ctx context.Context, teamID, playerName string) (*Identity, error) {
	resp, err := s.client.JoinTeam(ctx, teamID, playerName)
	if err != nil {
		return nil, err
	}

	s.identity = Identity{
		PlayerID: resp.PlayerID,
		TeamID:   resp.TeamID,
		GameID:   resp.GameID,
	}
	return &s.identity, nil
}

// Identity returns the session's current identity.
func (s *Session) Identity() Identity {
	return s.identity
}
