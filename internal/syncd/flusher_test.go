package syncd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/qrconquest/conquest/internal/api"
	"github.com/qrconquest/conquest/internal/game"
	"github.com/qrconquest/conquest/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// captureServer fakes the capture endpoint, answering per base id
type captureServer struct {
	mu sync.Mutex
	// status per base id; 0 means 200 OK
	responses map[string]int
	// requests seen, by base id
	seen map[string]int
}

func newCaptureServer() *captureServer {
	return &captureServer{
		responses: make(map[string]int),
		seen:      make(map[string]int),
	}
}

func (cs *captureServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.CaptureRequest
		json.NewDecoder(r.Body).Decode(&req)

		// Path shape: /api/bases/{id}/capture
		baseID := ""
		if parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/"); len(parts) == 4 {
			baseID = parts[2]
		}

		cs.mu.Lock()
		cs.seen[baseID]++
		status := cs.responses[baseID]
		cs.mu.Unlock()

		if status == 0 {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": "rejected"})
	}
}

func TestFlush_EmptyQueue(t *testing.T) {
	st := openTestStore(t)
	flusher := NewFlusher(st, api.NewClient("http://127.0.0.1:1"), nil, nil)

	stats, err := flusher.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if stats.Attempted != 0 || stats.Delivered != 0 || stats.Purged != 0 {
		t.Errorf("stats = %+v, want all zero", stats)
	}
}

func TestFlush_DeliversAll(t *testing.T) {
	cs := newCaptureServer()
	srv := httptest.NewServer(cs.handler())
	defer srv.Close()

	st := openTestStore(t)
	for _, b := range []string{"base-1", "base-2", "base-3"} {
		if _, err := st.Enqueue(b, "player-1", 40.0, -74.0); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", b, err)
		}
	}

	flusher := NewFlusher(st, api.NewClient(srv.URL), nil, nil)
	stats, err := flusher.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	if stats.Delivered != 3 || stats.Purged != 0 || stats.Remaining != 0 {
		t.Errorf("stats = %+v, want 3 delivered", stats)
	}

	count, err := st.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("PendingCount() = %d, want 0", count)
	}

	// Every delivery is journaled
	entries, err := st.ListSyncLog(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListSyncLog() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("len(entries) = %d, want 3", len(entries))
	}
	for _, e := range entries {
		if e.Outcome != store.OutcomeDelivered {
			t.Errorf("Outcome = %q, want %q", e.Outcome, store.OutcomeDelivered)
		}
	}
}

func TestFlush_TransportFailureKeepsQueued(t *testing.T) {
	st := openTestStore(t)
	id, err := st.Enqueue("base-1", "player-1", 40.7128, -74.0060)
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	flusher := NewFlusher(st, api.NewClient("http://127.0.0.1:1"), nil, nil)
	stats, err := flusher.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if stats.Delivered != 0 || stats.Purged != 0 || stats.Remaining != 1 {
		t.Errorf("stats = %+v, want 1 remaining", stats)
	}

	// The entry survives byte-for-byte: same id, key, coordinates
	pending, err := st.ListPending()
	if err != nil {
		t.Fatalf("ListPending() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	if pending[0].ID != id {
		t.Errorf("ID = %d, want %d", pending[0].ID, id)
	}
	if pending[0].Latitude != 40.7128 || pending[0].Longitude != -74.0060 {
		t.Errorf("coordinates = (%f, %f), changed by a failed flush", pending[0].Latitude, pending[0].Longitude)
	}
}

func TestFlush_RetryableRejectionKeepsQueued(t *testing.T) {
	for _, status := range []int{http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		cs := newCaptureServer()
		cs.responses["base-1"] = status
		srv := httptest.NewServer(cs.handler())

		st := openTestStore(t)
		if _, err := st.Enqueue("base-1", "player-1", 40.0, -74.0); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}

		flusher := NewFlusher(st, api.NewClient(srv.URL), nil, nil)
		stats, err := flusher.Flush(context.Background())
		if err != nil {
			t.Fatalf("status %d: Flush() failed: %v", status, err)
		}
		if stats.Remaining != 1 {
			t.Errorf("status %d: Remaining = %d, want 1", status, stats.Remaining)
		}
		if stats.Purged != 0 {
			t.Errorf("status %d: Purged = %d, want 0", status, stats.Purged)
		}
		srv.Close()
	}
}

func TestFlush_TerminalRejectionPurges(t *testing.T) {
	cs := newCaptureServer()
	cs.responses["base-gone"] = http.StatusNotFound
	srv := httptest.NewServer(cs.handler())
	defer srv.Close()

	st := openTestStore(t)
	if _, err := st.Enqueue("base-gone", "player-1", 40.0, -74.0); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if _, err := st.Enqueue("base-1", "player-1", 40.0, -74.0); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	flusher := NewFlusher(st, api.NewClient(srv.URL), nil, nil)
	stats, err := flusher.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	// A dead entry must not wedge the rest of the queue
	if stats.Delivered != 1 || stats.Purged != 1 || stats.Remaining != 0 {
		t.Errorf("stats = %+v, want 1 delivered + 1 purged", stats)
	}

	count, err := st.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("PendingCount() = %d, want 0", count)
	}

	// The purge is visible in the journal with its reason
	entries, err := st.ListSyncLog(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListSyncLog() failed: %v", err)
	}
	var purged *store.SyncLogEntry
	for _, e := range entries {
		if e.Outcome == store.OutcomePurged {
			purged = e
		}
	}
	if purged == nil {
		t.Fatal("no purged entry in the journal")
	}
	if purged.BaseID != "base-gone" {
		t.Errorf("purged BaseID = %q, want %q", purged.BaseID, "base-gone")
	}
	if purged.Detail == "" {
		t.Error("purged entry has no detail")
	}
}

func TestFlush_SendsIdempotencyKey(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := openTestStore(t)
	if _, err := st.Enqueue("base-1", "player-1", 40.0, -74.0); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	flusher := NewFlusher(st, api.NewClient(srv.URL), nil, nil)
	if _, err := flusher.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	if len(keys) != 1 || keys[0] == "" {
		t.Errorf("Idempotency-Key headers = %v, want one non-empty key", keys)
	}
}

func TestFlush_OverlappingPasses(t *testing.T) {
	cs := newCaptureServer()
	srv := httptest.NewServer(cs.handler())
	defer srv.Close()

	st := openTestStore(t)
	if _, err := st.Enqueue("base-1", "player-1", 40.0, -74.0); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	flusher := NewFlusher(st, api.NewClient(srv.URL), nil, nil)

	// Two concurrent passes race on the same entry; Remove is idempotent
	// and the shared key lets the server collapse the duplicate.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := flusher.Flush(context.Background()); err != nil {
				t.Errorf("Flush() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	count, err := st.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("PendingCount() = %d, want 0", count)
	}
}

// sinkRecorder records event sink calls
type sinkRecorder struct {
	mu        sync.Mutex
	delivered []int64
	purged    []int64
	completes int
}

func (r *sinkRecorder) EntryDelivered(pc *game.PendingCapture) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, pc.ID)
}

func (r *sinkRecorder) EntryPurged(pc *game.PendingCapture, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purged = append(r.purged, pc.ID)
}

func (r *sinkRecorder) FlushComplete(stats *FlushStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes++
}

func TestFlush_NotifiesSink(t *testing.T) {
	cs := newCaptureServer()
	cs.responses["base-dead"] = http.StatusGone
	srv := httptest.NewServer(cs.handler())
	defer srv.Close()

	st := openTestStore(t)
	if _, err := st.Enqueue("base-1", "player-1", 40.0, -74.0); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if _, err := st.Enqueue("base-dead", "player-1", 40.0, -74.0); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	sink := &sinkRecorder{}
	flusher := NewFlusher(st, api.NewClient(srv.URL), nil, sink)
	if _, err := flusher.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.delivered) != 1 {
		t.Errorf("delivered events = %d, want 1", len(sink.delivered))
	}
	if len(sink.purged) != 1 {
		t.Errorf("purged events = %d, want 1", len(sink.purged))
	}
	if sink.completes != 1 {
		t.Errorf("complete events = %d, want 1", sink.completes)
	}
}

func TestIsTerminalRejection(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&api.Error{Status: 400}, true},
		{&api.Error{Status: 404}, true},
		{&api.Error{Status: 409}, true},
		{&api.Error{Status: 408}, false},
		{&api.Error{Status: 429}, false},
		{&api.Error{Status: 500}, false},
		{&api.Error{Status: 503}, false},
		{context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		if got := isTerminalRejection(tt.err); got != tt.want {
			t.Errorf("isTerminalRejection(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
