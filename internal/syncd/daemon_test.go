package syncd

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qrconquest/conquest/internal/api"
	"github.com/qrconquest/conquest/internal/session"
	"github.com/qrconquest/conquest/internal/store"
)

func testDaemonConfig() *Config {
	return &Config{
		FlushInterval:    time.Hour, // keep the ticker out of the way
		ProbeInterval:    time.Hour,
		DebounceInterval: 10 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon-test] ", log.LstdFlags),
	}
}

// waitForCount polls the queue until it reaches want or times out
func waitForCount(t *testing.T, st *store.Store, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		count, err := st.PendingCount()
		if err != nil {
			t.Fatalf("PendingCount() failed: %v", err)
		}
		if count == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	count, _ := st.PendingCount()
	t.Fatalf("PendingCount() = %d after timeout, want %d", count, want)
}

func TestKick_CreatesFile(t *testing.T) {
	dataDir := t.TempDir()

	if err := Kick(dataDir); err != nil {
		t.Fatalf("Kick() failed: %v", err)
	}

	if _, err := os.Stat(KickPath(dataDir)); err != nil {
		t.Errorf("kick file missing: %v", err)
	}

	// Repeat kicks just rewrite the file
	if err := Kick(dataDir); err != nil {
		t.Errorf("Second Kick() failed: %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	st := openTestStore(t)
	client := api.NewClient("http://127.0.0.1:1")
	flusher := NewFlusher(st, client, nil, nil)
	probe := &session.PingProbe{Client: client}

	if _, err := New(nil, probe, t.TempDir(), nil); err == nil {
		t.Error("New() with nil flusher succeeded")
	}
	if _, err := New(flusher, nil, t.TempDir(), nil); err == nil {
		t.Error("New() with nil probe succeeded")
	}
	if _, err := New(flusher, probe, "", nil); err == nil {
		t.Error("New() with empty dataDir succeeded")
	}
	d, err := New(flusher, probe, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	d.Stop()
}

func TestDaemon_StartupFlush(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	st, err := store.Open(filepath.Join(dataDir, "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer st.Close()

	// Left over from a "previous run"
	if _, err := st.Enqueue("base-1", "player-1", 40.0, -74.0); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	client := api.NewClient(srv.URL)
	d, err := New(NewFlusher(st, client, nil, nil), &session.PingProbe{Client: client}, dataDir, testDaemonConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	waitForCount(t, st, 0)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemon_FlushOnKick(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	st, err := store.Open(filepath.Join(dataDir, "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer st.Close()

	client := api.NewClient(srv.URL)
	d, err := New(NewFlusher(st, client, nil, nil), &session.PingProbe{Client: client}, dataDir, testDaemonConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to attach before enqueueing
	time.Sleep(100 * time.Millisecond)

	// The foreground path: enqueue, then touch the kick file
	if _, err := st.Enqueue("base-1", "player-1", 40.0, -74.0); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if err := Kick(dataDir); err != nil {
		t.Fatalf("Kick() failed: %v", err)
	}

	waitForCount(t, st, 0)
}
