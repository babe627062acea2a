// Package dashboard provides a local WebSocket server broadcasting
// queue and flush events to connected observers.
//
// The daemon feeds it flush outcomes; clients (a host's laptop, a dev
// tool) subscribe at ws://host:port/ws and receive a JSON message per
// event. Broadcasting never blocks the sync path: a full channel drops
// the message.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of dashboard message.
type MessageType string

const (
	// MessageTypeEntryDelivered indicates a queued capture reached the server.
	MessageTypeEntryDelivered MessageType = "entry_delivered"

	// MessageTypeEntryPurged indicates a queued capture was dropped after
	// a terminal rejection.
	MessageTypeEntryPurged MessageType = "entry_purged"

	// MessageTypeFlushComplete indicates a flush pass finished.
	MessageTypeFlushComplete MessageType = "flush_complete"

	// MessageTypeScoreUpdate carries refreshed team scores.
	MessageTypeScoreUpdate MessageType = "score_update"

	// MessageTypeQueueStats carries the current queue depth.
	MessageTypeQueueStats MessageType = "queue_stats"
)

// Message is a single dashboard broadcast.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Config holds server configuration.
type Config struct {
	// Port to listen on. 0 picks an ephemeral port.
	Port int

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// Server accepts WebSocket subscribers and fans broadcast messages out
// to them.
type Server struct {
	addr     string
	listener net.Listener
	httpSrv  *http.Server

	subs   map[*websocket.Conn]struct{}
	subsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a dashboard server.
func NewServer(config *Config) *Server {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		subs:      make(map[*websocket.Conn]struct{}),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start begins listening. Non-blocking; use Stop to shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpSrv = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Dashboard server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server and disconnects subscribers.
func (s *Server) Stop() error {
	s.cancel()

	s.subsMu.Lock()
	for conn := range s.subs {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.subs, conn)
	}
	s.subsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Broadcast queues a message for delivery to all subscribers. Never
// blocks: when the channel is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// SubscriberCount returns the number of connected subscribers.
func (s *Server) SubscriberCount() int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subs)
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.subsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.subs))
			for conn := range s.subs {
				conns = append(conns, conn)
			}
			s.subsMu.RUnlock()

			// Writes happen outside the lock so a slow subscriber can't
			// stall new subscriptions
			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.logger.Printf("Failed to send to subscriber: %v", err)
					s.dropSubscriber(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.subsMu.Lock()
	s.subs[conn] = struct{}{}
	count := len(s.subs)
	s.subsMu.Unlock()

	s.logger.Printf("Subscriber connected (total: %d)", count)

	go s.readLoop(conn)
}

// readLoop drains client frames so pings are answered and disconnects
// are noticed.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.dropSubscriber(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) dropSubscriber(conn *websocket.Conn) {
	s.subsMu.Lock()
	_, exists := s.subs[conn]
	if exists {
		delete(s.subs, conn)
	}
	count := len(s.subs)
	s.subsMu.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Subscriber disconnected (total: %d)", count)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"subscribers": s.SubscriberCount(),
	})
}
