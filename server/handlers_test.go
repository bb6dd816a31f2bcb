package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"AuraFM/core/directory"
	"AuraFM/core/player"
	"AuraFM/core/sync"
	"AuraFM/core/watch"
	"AuraFM/model"
	"AuraFM/repository"
)

// stubCatalog is an in-memory CatalogStore just big enough for the facade.
type stubCatalog struct {
	state      *watch.Cell[repository.State]
	events     *watch.Bus[[]model.Operation]
	broadcasts map[int64]*model.Broadcast
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		state:      watch.NewCell(repository.StateIdle),
		events:     watch.NewBus[[]model.Operation](),
		broadcasts: make(map[int64]*model.Broadcast),
	}
}

func (s *stubCatalog) Start() error { s.state.Set(repository.StateReady); return nil }
func (s *stubCatalog) Close() error { return nil }

func (s *stubCatalog) State() *watch.Cell[repository.State]  { return s.state }
func (s *stubCatalog) Events() *watch.Bus[[]model.Operation] { return s.events }

func (s *stubCatalog) Load(subjects []repository.Subject, t model.EntityType) ([]model.Operation, error) {
	return nil, nil
}

func (s *stubCatalog) EntityByID(t model.EntityType, id int64) (model.Entity, bool, error) {
	if t == model.EntityBroadcast {
		b, ok := s.broadcasts[id]
		return b, ok, nil
	}
	return nil, false, nil
}

func (s *stubCatalog) BroadcastByID(id int64) (*model.Broadcast, bool, error) {
	b, ok := s.broadcasts[id]
	return b, ok, nil
}

func (s *stubCatalog) RecentBroadcasts(limit int) ([]model.Broadcast, error) { return nil, nil }

func (s *stubCatalog) ChannelByIdentifier(identifier string) (*model.Channel, bool, error) {
	return nil, false, nil
}

func (s *stubCatalog) SettingByIdentifier(identifier string) (*model.Setting, bool, error) {
	return nil, false, nil
}

func (s *stubCatalog) Programs() ([]model.Program, error) { return nil, nil }
func (s *stubCatalog) Reset() error                       { return nil }

type stubSyncSession struct {
	cell *watch.Cell[sync.State]
}

func (s *stubSyncSession) Start()                             {}
func (s *stubSyncSession) Stop()                              {}
func (s *stubSyncSession) StateCell() *watch.Cell[sync.State] { return s.cell }

type stubStateStore struct{}

func (stubStateStore) FullLoadDone(ctx context.Context) (bool, error)  { return true, nil }
func (stubStateStore) CatalogVersion(ctx context.Context) (int, error) { return 1, nil }
func (stubStateStore) Clear(ctx context.Context) error                 { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *stubCatalog) {
	t.Helper()

	cat := newStubCatalog()
	dir := directory.New(cat, &stubSyncSession{cell: watch.NewCell(sync.State{})}, stubStateStore{}, directory.Options{
		FeaturedSettingIdentifier: "featured",
		LiveChannelIdentifier:     "live",
		MinCatalogVersion:         1,
	})
	if err := dir.Start(context.Background()); err != nil {
		t.Fatalf("directory start: %v", err)
	}
	t.Cleanup(dir.Stop)

	tr := player.NewHeadlessTransport(time.Millisecond)
	t.Cleanup(tr.Close)
	playback := player.NewSession(tr, func() player.ResolverConfig {
		return player.ResolverConfig{CDNBase: "https://cdn.example.com"}
	}, nil)
	t.Cleanup(playback.Close)

	srv := httptest.NewServer(New("", dir, playback).Handler)
	t.Cleanup(srv.Close)
	return srv, cat
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestStatusReportsReadiness(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]any
	if code := getJSON(t, srv.URL+"/api/status", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	// The full-load marker is set, so the facade serves immediately.
	if body["state"] != "ready_to_serve" {
		t.Errorf("state = %v, want ready_to_serve", body["state"])
	}
}

func TestLiveChannelNotFoundUntilSynced(t *testing.T) {
	srv, _ := newTestServer(t)
	if code := getJSON(t, srv.URL+"/api/channel/live", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestPlayStartsKnownBroadcast(t *testing.T) {
	srv, cat := newTestServer(t)
	cat.broadcasts[1] = &model.Broadcast{ID: 1, Title: "Episode 1", DirectFilePath: "audio/ep1.mp3"}

	resp, err := http.Post(srv.URL+"/api/player/play", "application/json",
		strings.NewReader(`{"type": "BROADCAST", "id": 1}`))
	if err != nil {
		t.Fatalf("POST play: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var body map[string]any
		getJSON(t, srv.URL+"/api/player/state", &body)
		if body["state"] == "playing" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("player never reached playing")
}

func TestPlayUnknownEntity(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/player/play", "application/json",
		strings.NewReader(`{"type": "BROADCAST", "id": 404}`))
	if err != nil {
		t.Fatalf("POST play: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSeekRejectsInvalidPosition(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/player/seek?position=-5", "application/json", nil)
	if err != nil {
		t.Fatalf("POST seek: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
