package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/qrconquest/conquest/internal/api"
	"github.com/qrconquest/conquest/internal/game"
	"github.com/qrconquest/conquest/internal/store"
)

// fakeProbe reports a fixed connectivity answer
type fakeProbe struct {
	online bool
}

func (p *fakeProbe) Online(ctx context.Context) bool { return p.online }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testIdentity() Identity {
	return Identity{PlayerID: "player-1", TeamID: "team-red", GameID: "game-1"}
}

func TestCapture_OnlineSuccess(t *testing.T) {
	var captured bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/bases/base-1/capture" {
			captured = true
			w.WriteHeader(http.StatusOK)
			return
		}
		// Game refresh after the capture
		json.NewEncoder(w).Encode(game.Game{ID: "game-1", Name: "Test", Status: "active"})
	}))
	defer srv.Close()

	st := openTestStore(t)
	sess := New(api.NewClient(srv.URL), st, &fakeProbe{online: true}, testIdentity(), nil)

	result, err := sess.Capture(context.Background(), "base-1", 40.0, -74.0)
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	if result.Outcome != game.OutcomeCaptured {
		t.Errorf("Outcome = %v, want OutcomeCaptured", result.Outcome)
	}
	if !captured {
		t.Error("capture endpoint was never called")
	}

	// Nothing should be queued on a live success
	count, err := st.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("PendingCount() = %d, want 0", count)
	}
}

func TestCapture_OfflineQueues(t *testing.T) {
	st := openTestStore(t)
	client := api.NewClient("http://127.0.0.1:1") // nothing listens here
	sess := New(client, st, &fakeProbe{online: false}, testIdentity(), nil)

	result, err := sess.Capture(context.Background(), "base-1", 40.0, -74.0)
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	if result.Outcome != game.OutcomeQueued {
		t.Errorf("Outcome = %v, want OutcomeQueued", result.Outcome)
	}
	if result.QueueID == 0 {
		t.Error("QueueID = 0, want assigned id")
	}

	pending, err := st.ListPending()
	if err != nil {
		t.Fatalf("ListPending() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	if pending[0].BaseID != "base-1" || pending[0].PlayerID != "player-1" {
		t.Errorf("queued capture = %+v", pending[0])
	}
}

func TestCapture_TransportFailureQueues(t *testing.T) {
	// The probe says online but the request fails mid-flight
	st := openTestStore(t)
	client := api.NewClient("http://127.0.0.1:1")
	sess := New(client, st, &fakeProbe{online: true}, testIdentity(), nil)

	result, err := sess.Capture(context.Background(), "base-1", 40.0, -74.0)
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	if result.Outcome != game.OutcomeQueued {
		t.Errorf("Outcome = %v, want OutcomeQueued", result.Outcome)
	}
}

func TestCapture_RejectionNotQueued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "base already owned by your team"})
	}))
	defer srv.Close()

	st := openTestStore(t)
	sess := New(api.NewClient(srv.URL), st, &fakeProbe{online: true}, testIdentity(), nil)

	_, err := sess.Capture(context.Background(), "base-1", 40.0, -74.0)
	if err == nil {
		t.Fatal("Capture() succeeded, want rejection")
	}

	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *api.Error", err)
	}
	if apiErr.Status != http.StatusConflict {
		t.Errorf("Status = %d, want 409", apiErr.Status)
	}

	// A rejection must never land in the queue
	count, err := st.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("PendingCount() = %d, want 0", count)
	}
}

func TestCapture_NotOnTeam(t *testing.T) {
	st := openTestStore(t)
	sess := New(api.NewClient("http://127.0.0.1:1"), st, &fakeProbe{online: false}, Identity{}, nil)

	_, err := sess.Capture(context.Background(), "base-1", 40.0, -74.0)
	if !errors.Is(err, ErrNotOnTeam) {
		t.Errorf("error = %v, want ErrNotOnTeam", err)
	}

	count, _ := st.PendingCount()
	if count != 0 {
		t.Errorf("PendingCount() = %d, want 0", count)
	}
}

func TestLoadGame_LiveRefreshesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(game.Game{
			ID:     "game-1",
			Name:   "Test",
			Status: "active",
			Bases: []game.Base{
				{ID: "base-1", GameID: "game-1", Name: "Fountain", QRCode: "qr-1", Latitude: 40.0, Longitude: -74.0},
			},
		})
	}))
	defer srv.Close()

	st := openTestStore(t)
	sess := New(api.NewClient(srv.URL), st, &fakeProbe{online: true}, testIdentity(), nil)

	g, fetchedAt, err := sess.LoadGame(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("LoadGame() failed: %v", err)
	}
	if g.Name != "Test" {
		t.Errorf("Name = %q, want %q", g.Name, "Test")
	}
	if !fetchedAt.IsZero() {
		t.Error("live result carries a snapshot timestamp")
	}

	// The fetch also resolves QR codes offline from now on
	a, err := st.LookupQRCode(context.Background(), "qr-1")
	if err != nil {
		t.Fatalf("LookupQRCode() failed: %v", err)
	}
	if a.Status != game.QRStatusBase || a.BaseID != "base-1" {
		t.Errorf("assignment = %+v", a)
	}
}

func TestLoadGame_FallsBackToCache(t *testing.T) {
	st := openTestStore(t)
	if err := st.PutGameSnapshot(context.Background(), &game.Game{ID: "game-1", Name: "Cached", Status: "active"}); err != nil {
		t.Fatalf("PutGameSnapshot() failed: %v", err)
	}

	sess := New(api.NewClient("http://127.0.0.1:1"), st, &fakeProbe{online: false}, testIdentity(), nil)

	g, fetchedAt, err := sess.LoadGame(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("LoadGame() failed: %v", err)
	}
	if g.Name != "Cached" {
		t.Errorf("Name = %q, want %q", g.Name, "Cached")
	}
	if fetchedAt.IsZero() {
		t.Error("cached result has no snapshot timestamp")
	}
}

func TestLoadGame_UnreachableAndUncached(t *testing.T) {
	st := openTestStore(t)
	sess := New(api.NewClient("http://127.0.0.1:1"), st, &fakeProbe{online: false}, testIdentity(), nil)

	_, _, err := sess.LoadGame(context.Background(), "game-1")
	if err == nil {
		t.Fatal("LoadGame() succeeded with no server and no cache")
	}
}

func TestLoadGame_RejectionNotMasked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "game not found"})
	}))
	defer srv.Close()

	st := openTestStore(t)
	// Cache holds a snapshot, but a server rejection must win over it
	if err := st.PutGameSnapshot(context.Background(), &game.Game{ID: "game-1", Name: "Stale", Status: "ended"}); err != nil {
		t.Fatalf("PutGameSnapshot() failed: %v", err)
	}

	sess := New(api.NewClient(srv.URL), st, &fakeProbe{online: true}, testIdentity(), nil)

	_, _, err := sess.LoadGame(context.Background(), "game-1")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *api.Error", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", apiErr.Status)
	}
}

func TestJoin_UpdatesIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.JoinTeamResponse{
			PlayerID: "player-9",
			TeamID:   "team-blue",
			GameID:   "game-1",
		})
	}))
	defer srv.Close()

	st := openTestStore(t)
	sess := New(api.NewClient(srv.URL), st, &fakeProbe{online: true}, Identity{}, nil)

	identity, err := sess.Join(context.Background(), "team-blue", "carol")
	if err != nil {
		t.Fatalf("Join() failed: %v", err)
	}
	if identity.PlayerID != "player-9" || identity.TeamID != "team-blue" || identity.GameID != "game-1" {
		t.Errorf("identity = %+v", identity)
	}
	if sess.Identity() != *identity {
		t.Errorf("session identity = %+v, want %+v", sess.Identity(), *identity)
	}
}
