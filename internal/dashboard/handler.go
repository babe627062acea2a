package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/qrconquest/conquest/internal/game"
	"github.com/qrconquest/conquest/internal/syncd"
)

// Handler translates sync daemon events into dashboard messages. It
// implements syncd.EventSink.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates an event handler feeding the given server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// EntryData describes one queued capture's disposition.
type EntryData struct {
	CaptureID int64  `json:"capture_id"`
	BaseID    string `json:"base_id"`
	PlayerID  string `json:"player_id"`
	Reason    string `json:"reason,omitempty"`
}

// ScoreData carries refreshed team scores for a game.
type ScoreData struct {
	GameID string      `json:"game_id"`
	Teams  []game.Team `json:"teams"`
}

// QueueStatsData carries the current queue depth.
type QueueStatsData struct {
	Pending int `json:"pending"`
}

// EntryDelivered implements syncd.EventSink.
func (h *Handler) EntryDelivered(pc *game.PendingCapture) {
	h.send(MessageTypeEntryDelivered, EntryData{
		CaptureID: pc.ID,
		BaseID:    pc.BaseID,
		PlayerID:  pc.PlayerID,
	})
}

// EntryPurged implements syncd.EventSink.
func (h *Handler) EntryPurged(pc *game.PendingCapture, reason string) {
	h.send(MessageTypeEntryPurged, EntryData{
		CaptureID: pc.ID,
		BaseID:    pc.BaseID,
		PlayerID:  pc.PlayerID,
		Reason:    reason,
	})
}

// FlushComplete implements syncd.EventSink.
func (h *Handler) FlushComplete(stats *syncd.FlushStats) {
	h.send(MessageTypeFlushComplete, stats)
}

// ScoreUpdate broadcasts refreshed team scores.
func (h *Handler) ScoreUpdate(gameID string, teams []game.Team) {
	h.send(MessageTypeScoreUpdate, ScoreData{GameID: gameID, Teams: teams})
}

// QueueStats broadcasts the current queue depth.
func (h *Handler) QueueStats(pending int) {
	h.send(MessageTypeQueueStats, QueueStatsData{Pending: pending})
}

func (h *Handler) send(typ MessageType, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      payload,
	})
}
