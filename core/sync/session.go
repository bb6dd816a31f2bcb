// Package sync drives the catalog synchronization session: the connection
// lifecycle, the live-update subscription, and the cursor-paginated sweep
// over all entity types that keeps the local catalog consistent.
package sync

import (
	"context"
	"time"

	"AuraFM/core/graph"
	"AuraFM/core/watch"
	"AuraFM/logger"
	"AuraFM/model"
	"AuraFM/repository"
)

// Phase is the coarse connection/session phase of the sync session.
type Phase int

const (
	PhasePaused Phase = iota
	PhaseStarting
	PhaseWaitingForConnection
	PhaseConnected
	PhaseSubscribing
	PhaseSubscribed
	PhaseSynchronizing
	PhaseLoaded
)

func (p Phase) String() string {
	switch p {
	case PhasePaused:
		return "paused"
	case PhaseStarting:
		return "starting"
	case PhaseWaitingForConnection:
		return "waiting_for_connection"
	case PhaseConnected:
		return "connected"
	case PhaseSubscribing:
		return "subscribing"
	case PhaseSubscribed:
		return "subscribed"
	case PhaseSynchronizing:
		return "synchronizing"
	case PhaseLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// SweepStep is the nested step of the synchronization sweep.
type SweepStep int

const (
	StepInitial SweepStep = iota
	StepSend
	StepAwaitResponse
	StepHandleResponse
	StepDone
)

// SweepState reports sweep progress: which entity type is draining and how
// far through the fixed order the sweep is.
type SweepState struct {
	Step        SweepStep
	EntityType  model.EntityType
	TypeIndex   int
	TypeCount   int
	PagesLoaded int
}

// State is the externally observable session state.
type State struct {
	Phase Phase
	Sweep SweepState
}

// Loader is the catalog write surface the session needs.
type Loader interface {
	Load(subjects []repository.Subject, t model.EntityType) ([]model.Operation, error)
}

// StateStore persists the watermark and full-load bookkeeping.
type StateStore interface {
	Watermark(ctx context.Context) (*time.Time, error)
	AdvanceWatermark(ctx context.Context, t time.Time) error
	MarkFullLoadDone(ctx context.Context) error
	SetCatalogVersion(ctx context.Context, v int) error
}

// Options tune a session.
type Options struct {
	PageSize   int
	AppVersion int
}

// Session is the content synchronization state machine. All transitions run
// on the single event goroutine; the published State cell is the only thing
// other components read.
type Session struct {
	transport graph.Transport
	catalog   Loader
	store     StateStore
	opts      Options

	cell *watch.Cell[State]

	// event goroutine state, no lock needed
	state        State
	pendingSub   string
	pendingReq   string
	requestSince *time.Time
	newestChange *time.Time
	cursor       *string

	stallTimer *time.Timer

	commands chan command
	done     chan struct{}
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
)

type command struct {
	kind commandKind
}

// stallWarnAfter is purely diagnostic: a request without a matching response
// stalls the sweep indefinitely, and that gap is kept as-is.
const stallWarnAfter = 60 * time.Second

// NewSession creates a sync session over the given transport.
func NewSession(transport graph.Transport, catalog Loader, store StateStore, opts Options) *Session {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	s := &Session{
		transport: transport,
		catalog:   catalog,
		store:     store,
		opts:      opts,
		cell:      watch.NewCell(State{Phase: PhasePaused}),
		state:     State{Phase: PhasePaused},
		commands:  make(chan command),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// StateCell exposes the session's published state.
func (s *Session) StateCell() *watch.Cell[State] {
	return s.cell
}

// Start begins a session. Only effective from Paused.
func (s *Session) Start() {
	s.commands <- command{kind: cmdStart}
}

// Stop unconditionally returns the session to Paused and tears down the
// transport. An in-flight response, if it ever arrives, no longer matches
// the pending-request bookkeeping and is dropped.
func (s *Session) Stop() {
	s.commands <- command{kind: cmdStop}
}

// Shutdown stops the session and terminates the event goroutine.
func (s *Session) Shutdown() {
	s.Stop()
	close(s.commands)
	<-s.done
	s.cell.Close()
}

func (s *Session) run() {
	defer close(s.done)

	events, cancel := s.transport.Events().Subscribe()
	defer cancel()

	for {
		select {
		case cmd, ok := <-s.commands:
			if !ok {
				return
			}
			switch cmd.kind {
			case cmdStart:
				s.handleStart()
			case cmdStop:
				s.handleStop()
			}
		case ev := <-events:
			s.handleEvent(ev)
		}
	}
}

func (s *Session) setState(st State) {
	s.state = st
	s.cell.Set(st)
}

func (s *Session) setPhase(p Phase) {
	st := s.state
	st.Phase = p
	s.setState(st)
}

func (s *Session) handleStart() {
	if s.state.Phase != PhasePaused {
		return
	}
	logger.Info("sync session starting")
	s.setPhase(PhaseStarting)
	s.transport.Start()
	s.setPhase(PhaseWaitingForConnection)
}

func (s *Session) handleStop() {
	if s.state.Phase == PhasePaused {
		return
	}
	logger.Info("sync session stopping")
	s.transport.Stop()
	s.clearStallTimer()
	s.pendingSub = ""
	s.pendingReq = ""
	s.cursor = nil
	s.newestChange = nil
	s.setState(State{Phase: PhasePaused})
}

func (s *Session) handleEvent(ev graph.Event) {
	if s.state.Phase == PhasePaused {
		// Late transport events after stop() are ignored.
		return
	}

	switch ev.Kind {
	case graph.EventOpened:
		s.handleOpened()
	case graph.EventFailed:
		s.handleFailed(ev)
	case graph.EventMessage:
		s.handleMessage(ev.Envelope)
	}
}

func (s *Session) handleOpened() {
	if s.state.Phase != PhaseWaitingForConnection {
		return
	}
	s.setPhase(PhaseConnected)

	sub := graph.NewSubscription()
	if err := s.transport.Send(sub); err != nil {
		logger.Warn("subscription send failed", logger.ErrorField(err))
		s.setPhase(PhaseWaitingForConnection)
		return
	}
	s.pendingSub = sub.ID
	s.setPhase(PhaseSubscribing)
}

func (s *Session) handleFailed(ev graph.Event) {
	// Reconnect attempts are transport-owned; the session only waits for
	// the next opened signal.
	logger.Warn("catalog connection failed", logger.ErrorField(ev.Err))
	s.clearStallTimer()
	s.pendingSub = ""
	s.pendingReq = ""
	s.setState(State{Phase: PhaseWaitingForConnection})
}

func (s *Session) handleMessage(env *graph.Envelope) {
	if env == nil {
		return
	}
	switch env.Subtype {
	case graph.SubtypeSubscriptionResponse:
		s.handleSubscriptionResponse(env)
	case graph.SubtypeRequestResponse:
		s.handleRequestResponse(env)
	case graph.SubtypeSubscriptionUpdate:
		s.handleSubscriptionUpdate(env)
	default:
		// command/command_response traffic is not part of the sync flow
	}
}

func (s *Session) handleSubscriptionResponse(env *graph.Envelope) {
	if s.state.Phase != PhaseSubscribing || env.RespondingTo != s.pendingSub {
		return
	}
	s.pendingSub = ""
	s.setPhase(PhaseSubscribed)
	s.beginSweep()
}

// beginSweep reads the persisted watermark, seeds the running maximum and
// starts draining the first entity type of the fixed order.
func (s *Session) beginSweep() {
	s.setState(State{
		Phase: PhaseSynchronizing,
		Sweep: SweepState{
			Step:       StepInitial,
			EntityType: model.SyncOrder[0],
			TypeCount:  len(model.SyncOrder),
		},
	})

	since, err := s.store.Watermark(context.Background())
	if err != nil {
		logger.Error("failed to read watermark", logger.ErrorField(err))
		return
	}
	s.requestSince = since
	s.newestChange = since
	s.cursor = nil
	s.sendPage(0, 0)
}

// sendPage issues the paginated request for the current entity type.
func (s *Session) sendPage(typeIndex, pagesLoaded int) {
	entityType := model.SyncOrder[typeIndex]

	req, err := graph.NewCatalogRequest(entityType, s.requestSince, s.cursor, s.opts.PageSize)
	if err != nil {
		logger.Error("failed to build catalog request", logger.ErrorField(err))
		return
	}

	s.setState(State{
		Phase: PhaseSynchronizing,
		Sweep: SweepState{
			Step:        StepSend,
			EntityType:  entityType,
			TypeIndex:   typeIndex,
			TypeCount:   len(model.SyncOrder),
			PagesLoaded: pagesLoaded,
		},
	})

	if err := s.transport.Send(req); err != nil {
		logger.Warn("catalog request send failed", logger.ErrorField(err))
		return
	}
	s.pendingReq = req.ID

	st := s.state
	st.Sweep.Step = StepAwaitResponse
	s.setState(st)
	s.armStallTimer(req.ID, entityType)
}

func (s *Session) handleRequestResponse(env *graph.Envelope) {
	if s.state.Phase != PhaseSynchronizing ||
		s.state.Sweep.Step != StepAwaitResponse ||
		env.RespondingTo != s.pendingReq {
		// Unmatched responses are dropped.
		return
	}
	s.pendingReq = ""
	s.clearStallTimer()

	sweep := s.state.Sweep
	sweep.Step = StepHandleResponse
	s.setState(State{Phase: PhaseSynchronizing, Sweep: sweep})

	conn, err := graph.DecodeConnection(env.Payload)
	if err != nil {
		logger.Error("catalog response decode failed", logger.ErrorField(err))
		return
	}

	entityType := sweep.EntityType
	subjects := make([]repository.Subject, 0, len(conn.Edges))
	for _, edge := range conn.Edges {
		entity, err := model.DecodeEntity(entityType, edge.Node)
		if err != nil {
			logger.Error("catalog node decode failed",
				logger.String("type", string(entityType)),
				logger.ErrorField(err))
			return
		}
		subjects = append(subjects, repository.Subject{Meta: edge.MetaData, Entity: entity})
		s.observeChange(edge.MetaData.UpdatedAt)
	}

	if len(subjects) > 0 {
		if _, err := s.catalog.Load(subjects, entityType); err != nil {
			logger.Error("catalog batch write failed", logger.ErrorField(err))
			return
		}
	}

	if conn.PageInfo.HasNextPage && len(conn.Edges) > 0 {
		cursor := conn.Edges[len(conn.Edges)-1].Cursor
		s.cursor = &cursor
		s.sendPage(sweep.TypeIndex, sweep.PagesLoaded+1)
		return
	}

	// This type is drained; advance to the next one or finish.
	s.cursor = nil
	next := sweep.TypeIndex + 1
	if next < len(model.SyncOrder) {
		s.sendPage(next, 0)
		return
	}
	s.finishSweep()
}

// observeChange advances the running maximum updatedAt of this pass.
func (s *Session) observeChange(updatedAt time.Time) {
	if s.newestChange == nil || updatedAt.After(*s.newestChange) {
		t := updatedAt
		s.newestChange = &t
	}
}

// finishSweep persists the watermark (never regressing it), records the
// one-time full-load marker, and moves to Loaded.
func (s *Session) finishSweep() {
	ctx := context.Background()

	if s.newestChange != nil {
		if err := s.store.AdvanceWatermark(ctx, *s.newestChange); err != nil {
			logger.Error("failed to persist watermark", logger.ErrorField(err))
		}
	}
	if err := s.store.MarkFullLoadDone(ctx); err != nil {
		logger.Error("failed to persist full-load marker", logger.ErrorField(err))
	}
	if err := s.store.SetCatalogVersion(ctx, s.opts.AppVersion); err != nil {
		logger.Error("failed to persist catalog version", logger.ErrorField(err))
	}

	logger.Info("catalog sweep complete")
	s.setState(State{
		Phase: PhaseLoaded,
		Sweep: SweepState{Step: StepDone, TypeIndex: len(model.SyncOrder), TypeCount: len(model.SyncOrder)},
	})
}

// handleSubscriptionUpdate applies a pushed row immediately as a
// single-operation batch, independent of the sweep's cursor state.
func (s *Session) handleSubscriptionUpdate(env *graph.Envelope) {
	upd, err := graph.DecodeSubscriptionUpdate(env.Payload)
	if err != nil {
		logger.Error("subscription update decode failed", logger.ErrorField(err))
		return
	}
	entity, err := model.DecodeEntity(upd.EntityType, upd.Entity)
	if err != nil {
		logger.Error("subscription update node decode failed",
			logger.String("type", string(upd.EntityType)),
			logger.ErrorField(err))
		return
	}

	subject := repository.Subject{Meta: upd.MetaData, Entity: entity}
	if _, err := s.catalog.Load([]repository.Subject{subject}, upd.EntityType); err != nil {
		logger.Error("live update write failed", logger.ErrorField(err))
	}
}

func (s *Session) armStallTimer(reqID string, entityType model.EntityType) {
	s.clearStallTimer()
	s.stallTimer = time.AfterFunc(stallWarnAfter, func() {
		logger.Warn("catalog request still awaiting response",
			logger.String("requestId", reqID),
			logger.String("type", string(entityType)),
			logger.Duration("after", stallWarnAfter))
	})
}

func (s *Session) clearStallTimer() {
	if s.stallTimer != nil {
		s.stallTimer.Stop()
		s.stallTimer = nil
	}
}
