// Package directory owns the catalog store, drives the sync session and
// exposes the read-side materialized collections the UI renders.
package directory

import (
	"context"
	"sync/atomic"

	"AuraFM/core/sync"
	"AuraFM/core/watch"
	"AuraFM/logger"
	"AuraFM/model"
	"AuraFM/repository"
)

// ReadinessKind is the coarse overall readiness state.
type ReadinessKind int

const (
	ReadinessInitial ReadinessKind = iota
	ReadinessWaitingForConnection
	ReadinessLoading
	ReadinessPreparingContent
	ReadinessReady
)

// Readiness aggregates sync progress into one signal. Once it reaches
// PreparingContent it latches: a background re-sync never un-does a
// completed historical load.
type Readiness struct {
	Kind       ReadinessKind
	Phase      model.EntityType
	TypesDone  int
	TypesTotal int
}

// SyncSession is the slice of the sync session the directory drives.
type SyncSession interface {
	Start()
	Stop()
	StateCell() *watch.Cell[sync.State]
}

// StateStore is the persisted bookkeeping the directory consults on startup.
type StateStore interface {
	FullLoadDone(ctx context.Context) (bool, error)
	CatalogVersion(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Options configure the directory's views and the version gate.
type Options struct {
	FeaturedSettingIdentifier string
	LiveChannelIdentifier     string
	LatestBroadcastCount      int
	ProgramPriority           []string
	AppVersion                int
	MinCatalogVersion         int
}

// FeaturedItem is one resolved entry of the featured collection.
type FeaturedItem struct {
	Entry  model.FeaturedEntry
	Entity model.Entity
}

// Directory aggregates sync progress and derives the materialized views.
type Directory struct {
	catalog repository.CatalogStore
	session SyncSession
	store   StateStore
	opts    Options

	readiness *watch.Cell[Readiness]
	featured  *watch.Cell[[]FeaturedItem]
	latest    *watch.Cell[[]model.Broadcast]
	programs  *watch.Cell[[]model.Program]

	// Written once by the goroutine that reaches PreparingContent, read by
	// any consumer goroutine.
	live atomic.Pointer[watch.LiveEntity[*model.Channel]]

	featuredSettingID int64

	cancels []func()
}

// New creates a directory over the given collaborators. Start wires it up.
func New(catalog repository.CatalogStore, session SyncSession, store StateStore, opts Options) *Directory {
	if opts.LatestBroadcastCount <= 0 {
		opts.LatestBroadcastCount = 10
	}
	return &Directory{
		catalog:   catalog,
		session:   session,
		store:     store,
		opts:      opts,
		readiness: watch.NewCell(Readiness{Kind: ReadinessInitial}),
		featured:  watch.NewCell[[]FeaturedItem](nil),
		latest:    watch.NewCell[[]model.Broadcast](nil),
		programs:  watch.NewCell[[]model.Program](nil),
	}
}

// Catalog exposes the owned catalog store's read side.
func (d *Directory) Catalog() repository.CatalogStore { return d.catalog }

// ReadinessCell exposes the overall readiness signal.
func (d *Directory) ReadinessCell() *watch.Cell[Readiness] { return d.readiness }

// FeaturedCell exposes the featured collection.
func (d *Directory) FeaturedCell() *watch.Cell[[]FeaturedItem] { return d.featured }

// LatestCell exposes the latest-broadcasts window.
func (d *Directory) LatestCell() *watch.Cell[[]model.Broadcast] { return d.latest }

// ProgramsCell exposes the ordered program list.
func (d *Directory) ProgramsCell() *watch.Cell[[]model.Program] { return d.programs }

// LiveChannel returns the live-updating channel projection, nil until the
// channel row has been synced.
func (d *Directory) LiveChannel() *watch.LiveEntity[*model.Channel] { return d.live.Load() }

// Start opens storage (wiping incompatible or corrupt data), wires the
// reactive subscriptions and starts synchronization.
func (d *Directory) Start(ctx context.Context) error {
	if err := d.openStorage(ctx); err != nil {
		return err
	}

	// A previously completed full load serves content immediately; live
	// synchronization continues in the background.
	done, err := d.store.FullLoadDone(ctx)
	if err != nil {
		logger.Warn("failed to read full-load marker", logger.ErrorField(err))
	}
	if done {
		d.enterPreparing()
	}

	d.watchSession()
	d.watchCatalog()

	d.session.Start()
	return nil
}

// Stop tears down subscriptions and pauses synchronization.
func (d *Directory) Stop() {
	d.session.Stop()
	for _, cancel := range d.cancels {
		cancel()
	}
	d.cancels = nil
	if le := d.live.Swap(nil); le != nil {
		le.Stop()
	}
}

// openStorage enforces the version gate and recovers a corrupt store with a
// single wipe-and-retry, not an open-ended loop.
func (d *Directory) openStorage(ctx context.Context) error {
	done, _ := d.store.FullLoadDone(ctx)
	version, err := d.store.CatalogVersion(ctx)
	if err != nil {
		logger.Warn("failed to read catalog version", logger.ErrorField(err))
	}
	if done && version < d.opts.MinCatalogVersion {
		logger.Info("catalog version below minimum, wiping",
			logger.Int("stored", version),
			logger.Int("minimum", d.opts.MinCatalogVersion))
		if err := d.wipe(ctx); err != nil {
			return err
		}
	}

	if err := d.catalog.Start(); err != nil {
		logger.Warn("catalog storage failed to open, wiping and retrying once",
			logger.ErrorField(err))
		if err := d.wipe(ctx); err != nil {
			return err
		}
		if err := d.catalog.Start(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Directory) wipe(ctx context.Context) error {
	if err := d.catalog.Reset(); err != nil {
		return err
	}
	return d.store.Clear(ctx)
}

// watchSession maps sync session states onto readiness, with the latch.
func (d *Directory) watchSession() {
	ch, cancel := d.session.StateCell().Subscribe()
	d.cancels = append(d.cancels, cancel)

	go func() {
		for st := range ch {
			d.applySessionState(st)
		}
	}()
}

func (d *Directory) applySessionState(st sync.State) {
	current := d.readiness.Get()
	if current.Kind >= ReadinessPreparingContent {
		return
	}

	mapped := mapReadiness(st)
	if mapped.Kind == ReadinessPreparingContent {
		d.enterPreparing()
		return
	}
	d.readiness.Set(mapped)
}

// mapReadiness collapses the session's state vocabulary into the coarser
// readiness contract.
func mapReadiness(st sync.State) Readiness {
	switch st.Phase {
	case sync.PhasePaused, sync.PhaseStarting:
		return Readiness{Kind: ReadinessInitial}
	case sync.PhaseWaitingForConnection:
		return Readiness{Kind: ReadinessWaitingForConnection}
	case sync.PhaseConnected, sync.PhaseSubscribing, sync.PhaseSubscribed:
		return Readiness{Kind: ReadinessLoading, TypesTotal: len(model.SyncOrder)}
	case sync.PhaseSynchronizing:
		return Readiness{
			Kind:       ReadinessLoading,
			Phase:      st.Sweep.EntityType,
			TypesDone:  st.Sweep.TypeIndex,
			TypesTotal: st.Sweep.TypeCount,
		}
	default:
		return Readiness{Kind: ReadinessPreparingContent}
	}
}

// enterPreparing computes the four collections once, then flips to Ready.
func (d *Directory) enterPreparing() {
	if d.readiness.Get().Kind >= ReadinessPreparingContent {
		return
	}
	d.readiness.Set(Readiness{Kind: ReadinessPreparingContent})

	d.computeFeatured()
	d.computeLatest()
	d.computePrograms()
	d.computeLive()

	d.readiness.Set(Readiness{Kind: ReadinessReady})
	logger.Info("content directory ready to serve")
}

// watchCatalog re-derives collections from catalog change events once the
// directory is ready.
func (d *Directory) watchCatalog() {
	ch, cancel := d.catalog.Events().Subscribe()
	d.cancels = append(d.cancels, cancel)

	go func() {
		for ops := range ch {
			if d.readiness.Get().Kind != ReadinessReady {
				continue
			}
			d.applyOperations(ops)
		}
	}()
}

func (d *Directory) applyOperations(ops []model.Operation) {
	var redoFeatured, redoLatest, redoPrograms bool
	listed := broadcastIDs(d.latest.Get())

	for _, op := range ops {
		switch op.Type {
		case model.EntitySetting:
			if op.Kind != model.OpUpsert {
				continue
			}
			// The featured setting is identified by row id, captured the
			// first time it is found. Until then any setting upsert may be it.
			if d.featuredSettingID == 0 || op.ID == d.featuredSettingID {
				redoFeatured = true
			}
		case model.EntityBroadcast:
			if op.Kind == model.OpUpsert || listed[op.ID] {
				redoLatest = true
			}
		case model.EntityProgram:
			redoPrograms = true
		}
	}

	if redoFeatured {
		d.computeFeatured()
	}
	if redoLatest {
		d.computeLatest()
	}
	if redoPrograms {
		d.computePrograms()
	}
}

func broadcastIDs(bs []model.Broadcast) map[int64]bool {
	ids := make(map[int64]bool, len(bs))
	for _, b := range bs {
		ids[b.ID] = true
	}
	return ids
}
