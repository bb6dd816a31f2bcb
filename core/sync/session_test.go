package sync

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"AuraFM/core/graph"
	"AuraFM/core/watch"
	"AuraFM/model"
	"AuraFM/repository"
)

const waitTimeout = 2 * time.Second

type fakeTransport struct {
	events *watch.Bus[graph.Event]
	sends  chan graph.Envelope

	mu      stdsync.Mutex
	started int
	stopped int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: watch.NewBus[graph.Event](),
		sends:  make(chan graph.Envelope, 64),
	}
}

func (f *fakeTransport) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeTransport) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeTransport) Send(env graph.Envelope) error {
	f.sends <- env
	return nil
}

func (f *fakeTransport) Events() *watch.Bus[graph.Event] { return f.events }

func (f *fakeTransport) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type loadCall struct {
	subjects   []repository.Subject
	entityType model.EntityType
}

type fakeLoader struct {
	mu    stdsync.Mutex
	calls []loadCall
}

func (f *fakeLoader) Load(subjects []repository.Subject, t model.EntityType) ([]model.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, loadCall{subjects: subjects, entityType: t})
	return nil, nil
}

func (f *fakeLoader) loadCalls() []loadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]loadCall(nil), f.calls...)
}

type fakeStateStore struct {
	mu        stdsync.Mutex
	watermark *time.Time
	loadDone  bool
	version   int
}

func (f *fakeStateStore) Watermark(ctx context.Context) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermark, nil
}

func (f *fakeStateStore) AdvanceWatermark(ctx context.Context, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watermark == nil || !t.Before(*f.watermark) {
		f.watermark = &t
	}
	return nil
}

func (f *fakeStateStore) MarkFullLoadDone(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadDone = true
	return nil
}

func (f *fakeStateStore) SetCatalogVersion(ctx context.Context, v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version = v
	return nil
}

func (f *fakeStateStore) snapshot() (wm *time.Time, done bool, version int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermark, f.loadDone, f.version
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func nextSend(t *testing.T, tr *fakeTransport) graph.Envelope {
	t.Helper()
	select {
	case env := <-tr.sends:
		return env
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for outbound message")
		return graph.Envelope{}
	}
}

func decodeRequest(t *testing.T, env graph.Envelope) graph.Request {
	t.Helper()
	var req graph.Request
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		t.Fatalf("decode request payload: %v", err)
	}
	return req
}

// openSubscribed drives a fresh session through connect and subscribe so a
// test can focus on the sweep itself.
func openSubscribed(t *testing.T, s *Session, tr *fakeTransport) {
	t.Helper()
	s.Start()
	tr.events.Publish(graph.Event{Kind: graph.EventOpened})

	sub := nextSend(t, tr)
	if sub.Subtype != graph.SubtypeSubscription {
		t.Fatalf("first outbound message is %s, want subscription", sub.Subtype)
	}
	tr.events.Publish(graph.Event{Kind: graph.EventMessage, Envelope: &graph.Envelope{
		ID:           "srv-1",
		Type:         graph.MessageType,
		Subtype:      graph.SubtypeSubscriptionResponse,
		RespondingTo: sub.ID,
	}})
}

func emptyPage() json.RawMessage {
	return json.RawMessage(`{"edges": [], "pageInfo": {"hasNextPage": false}}`)
}

func respond(tr *fakeTransport, reqID string, payload json.RawMessage) {
	tr.events.Publish(graph.Event{Kind: graph.EventMessage, Envelope: &graph.Envelope{
		ID:           "srv-resp",
		Type:         graph.MessageType,
		Subtype:      graph.SubtypeRequestResponse,
		RespondingTo: reqID,
		Payload:      payload,
	}})
}

func TestSweepDrainsTypesInFixedOrder(t *testing.T) {
	tr := newFakeTransport()
	loader := &fakeLoader{}
	store := &fakeStateStore{}
	s := NewSession(tr, loader, store, Options{PageSize: 100, AppVersion: 3})
	defer s.Shutdown()

	openSubscribed(t, s, tr)

	for i, want := range model.SyncOrder {
		req := nextSend(t, tr)
		if req.Subtype != graph.SubtypeRequest {
			t.Fatalf("outbound %d is %s, want request", i, req.Subtype)
		}
		st := s.StateCell().Get()
		if st.Sweep.EntityType != want {
			t.Errorf("sweep step %d drains %s, want %s", i, st.Sweep.EntityType, want)
		}
		if st.Sweep.TypeIndex != i {
			t.Errorf("sweep step %d reports index %d", i, st.Sweep.TypeIndex)
		}
		respond(tr, req.ID, emptyPage())
	}

	waitFor(t, "loaded phase", func() bool {
		return s.StateCell().Get().Phase == PhaseLoaded
	})

	wm, done, version := store.snapshot()
	if !done {
		t.Error("full-load marker not recorded")
	}
	if version != 3 {
		t.Errorf("catalog version = %d, want 3", version)
	}
	if wm != nil {
		t.Errorf("watermark = %v after sweep with no records, want unset", wm)
	}
}

func TestBootstrapRequestExcludesTombstones(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr, &fakeLoader{}, &fakeStateStore{}, Options{PageSize: 100})
	defer s.Shutdown()

	openSubscribed(t, s, tr)

	req := decodeRequest(t, nextSend(t, tr))
	if req.Variables.IncludeDeleted {
		t.Error("bootstrap request must not ask for tombstones")
	}
	val, ok := req.Variables.MetaDataQuery["deletedAt"]
	if !ok || val != nil {
		t.Errorf("metaDataQuery = %v, want {deletedAt: null}", req.Variables.MetaDataQuery)
	}
}

func TestIncrementalRequestCarriesWatermark(t *testing.T) {
	since := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStateStore{watermark: &since}

	tr := newFakeTransport()
	s := NewSession(tr, &fakeLoader{}, store, Options{PageSize: 100})
	defer s.Shutdown()

	openSubscribed(t, s, tr)

	req := decodeRequest(t, nextSend(t, tr))
	if !req.Variables.IncludeDeleted {
		t.Error("incremental request must include tombstones")
	}
	if got := req.Variables.MetaDataQuery["updatedAt_gt"]; got != since.Format(time.RFC3339Nano) {
		t.Errorf("updatedAt_gt = %v, want %s", got, since.Format(time.RFC3339Nano))
	}
}

func TestSweepPaginatesAndAdvancesWatermark(t *testing.T) {
	tr := newFakeTransport()
	loader := &fakeLoader{}
	store := &fakeStateStore{}
	s := NewSession(tr, loader, store, Options{PageSize: 2})
	defer s.Shutdown()

	openSubscribed(t, s, tr)

	page1 := json.RawMessage(`{
		"edges": [
			{"cursor": "c1",
			 "metaData": {"createdAt": "2025-01-01T00:00:00Z", "updatedAt": "2025-01-02T00:00:00Z"},
			 "node": {"id": 1, "name": "Alex"}},
			{"cursor": "c2",
			 "metaData": {"createdAt": "2025-01-01T00:00:00Z", "updatedAt": "2025-01-05T00:00:00Z"},
			 "node": {"id": 2, "name": "Robin"}}
		],
		"pageInfo": {"hasNextPage": true}
	}`)
	page2 := json.RawMessage(`{
		"edges": [
			{"cursor": "c3",
			 "metaData": {"createdAt": "2025-01-01T00:00:00Z", "updatedAt": "2025-01-03T00:00:00Z"},
			 "node": {"id": 3, "name": "Sam"}}
		],
		"pageInfo": {"hasNextPage": false}
	}`)

	first := nextSend(t, tr)
	respond(tr, first.ID, page1)

	second := nextSend(t, tr)
	req := decodeRequest(t, second)
	if req.Variables.After == nil || *req.Variables.After != "c2" {
		t.Fatalf("follow-up cursor = %v, want c2", req.Variables.After)
	}
	respond(tr, second.ID, page2)

	third := nextSend(t, tr)
	req = decodeRequest(t, third)
	if req.Variables.After != nil {
		t.Errorf("next entity type inherits cursor %q", *req.Variables.After)
	}
	respond(tr, third.ID, emptyPage())

	// Drain the remaining types.
	for i := 2; i < len(model.SyncOrder); i++ {
		env := nextSend(t, tr)
		respond(tr, env.ID, emptyPage())
	}

	waitFor(t, "loaded phase", func() bool {
		return s.StateCell().Get().Phase == PhaseLoaded
	})

	calls := loader.loadCalls()
	if len(calls) != 2 {
		t.Fatalf("loader calls = %d, want 2", len(calls))
	}
	if len(calls[0].subjects) != 2 || calls[0].entityType != model.EntityEmployee {
		t.Errorf("first batch: %d subjects of %s", len(calls[0].subjects), calls[0].entityType)
	}

	want := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	wm, _, _ := store.snapshot()
	if wm == nil || !wm.Equal(want) {
		t.Errorf("watermark = %v, want %v", wm, want)
	}
}

func TestUnmatchedResponseIsDropped(t *testing.T) {
	tr := newFakeTransport()
	loader := &fakeLoader{}
	s := NewSession(tr, loader, &fakeStateStore{}, Options{PageSize: 100})
	defer s.Shutdown()

	openSubscribed(t, s, tr)
	req := nextSend(t, tr)

	respond(tr, "not-the-request", json.RawMessage(`{
		"edges": [
			{"cursor": "x",
			 "metaData": {"createdAt": "2025-01-01T00:00:00Z", "updatedAt": "2025-01-01T00:00:00Z"},
			 "node": {"id": 9, "name": "Stray"}}
		],
		"pageInfo": {"hasNextPage": false}
	}`))

	time.Sleep(50 * time.Millisecond)
	if got := s.StateCell().Get(); got.Sweep.Step != StepAwaitResponse {
		t.Fatalf("sweep step = %v after stray response, want still awaiting", got.Sweep.Step)
	}
	if len(loader.loadCalls()) != 0 {
		t.Error("stray response reached the catalog")
	}

	// The matching response still lands afterwards.
	respond(tr, req.ID, emptyPage())
	waitFor(t, "second entity type", func() bool {
		return s.StateCell().Get().Sweep.TypeIndex == 1
	})
}

func TestStopMidSweepReturnsToPaused(t *testing.T) {
	tr := newFakeTransport()
	loader := &fakeLoader{}
	s := NewSession(tr, loader, &fakeStateStore{}, Options{PageSize: 100})
	defer s.Shutdown()

	openSubscribed(t, s, tr)
	req := nextSend(t, tr)

	s.Stop()
	waitFor(t, "paused phase", func() bool {
		return s.StateCell().Get().Phase == PhasePaused
	})
	if tr.stopCount() != 1 {
		t.Errorf("transport stops = %d, want 1", tr.stopCount())
	}

	// A late response for the abandoned request must change nothing.
	respond(tr, req.ID, emptyPage())
	time.Sleep(50 * time.Millisecond)
	if got := s.StateCell().Get().Phase; got != PhasePaused {
		t.Errorf("phase = %v after late response, want paused", got)
	}
	if len(loader.loadCalls()) != 0 {
		t.Error("late response reached the catalog")
	}
}

func TestSubscriptionUpdateAppliedDuringSweep(t *testing.T) {
	tr := newFakeTransport()
	loader := &fakeLoader{}
	s := NewSession(tr, loader, &fakeStateStore{}, Options{PageSize: 100})
	defer s.Shutdown()

	openSubscribed(t, s, tr)
	nextSend(t, tr) // first sweep request stays unanswered

	tr.events.Publish(graph.Event{Kind: graph.EventMessage, Envelope: &graph.Envelope{
		ID:      "srv-push",
		Type:    graph.MessageType,
		Subtype: graph.SubtypeSubscriptionUpdate,
		Payload: json.RawMessage(`{
			"entityType": "CHANNEL",
			"metaData": {"createdAt": "2025-01-01T00:00:00Z", "updatedAt": "2025-06-01T00:00:00Z"},
			"entity": {"id": 7, "identifier": "live", "live": true, "playable": true}
		}`),
	}})

	waitFor(t, "live update write", func() bool {
		return len(loader.loadCalls()) == 1
	})
	call := loader.loadCalls()[0]
	if call.entityType != model.EntityChannel || len(call.subjects) != 1 {
		t.Fatalf("live batch: %d subjects of %s", len(call.subjects), call.entityType)
	}
	if call.subjects[0].Entity.EntityID() != 7 {
		t.Errorf("live subject id = %d, want 7", call.subjects[0].Entity.EntityID())
	}
}

func TestConnectionLossMidSweepWaitsForReconnect(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr, &fakeLoader{}, &fakeStateStore{}, Options{PageSize: 100})
	defer s.Shutdown()

	openSubscribed(t, s, tr)
	nextSend(t, tr)

	tr.events.Publish(graph.Event{Kind: graph.EventFailed, Err: fmt.Errorf("connection reset")})
	waitFor(t, "waiting phase", func() bool {
		return s.StateCell().Get().Phase == PhaseWaitingForConnection
	})

	// Reopening runs the handshake again from the top.
	tr.events.Publish(graph.Event{Kind: graph.EventOpened})
	sub := nextSend(t, tr)
	if sub.Subtype != graph.SubtypeSubscription {
		t.Fatalf("post-reconnect message is %s, want subscription", sub.Subtype)
	}
}

func TestStartIgnoredUnlessPaused(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr, &fakeLoader{}, &fakeStateStore{}, Options{PageSize: 100})
	defer s.Shutdown()

	s.Start()
	s.Start()
	waitFor(t, "waiting phase", func() bool {
		return s.StateCell().Get().Phase == PhaseWaitingForConnection
	})

	tr.mu.Lock()
	started := tr.started
	tr.mu.Unlock()
	if started != 1 {
		t.Errorf("transport starts = %d, want 1", started)
	}
}
