package watch

import (
	"AuraFM/logger"
	"AuraFM/model"
)

// Fetcher looks up the current value for an entity id. ok is false when the
// row no longer exists.
type Fetcher[T any] func(id int64) (value T, ok bool, err error)

// LiveEntity is a 1:1 reactive projection of a single catalog entity: it
// watches the catalog's change stream, and whenever an operation matches the
// seed's id and type it re-fetches the entity and republishes it. Operations
// for unrelated ids or types never cause a publish.
type LiveEntity[T any] struct {
	cell   *Cell[T]
	cancel func()
	done   chan struct{}
}

// NewLiveEntity starts a live projection of the entity identified by
// (id, entityType), seeded with the given value.
func NewLiveEntity[T any](seed T, id int64, entityType model.EntityType, events *Bus[[]model.Operation], fetch Fetcher[T]) *LiveEntity[T] {
	le := &LiveEntity[T]{
		cell: NewCell(seed),
		done: make(chan struct{}),
	}

	ch, cancel := events.Subscribe()
	le.cancel = cancel

	go func() {
		defer close(le.done)
		for ops := range ch {
			if !matches(ops, id, entityType) {
				continue
			}
			value, ok, err := fetch(id)
			if err != nil {
				logger.Warn("live entity refetch failed",
					logger.Int64("id", id),
					logger.String("type", string(entityType)),
					logger.ErrorField(err))
				continue
			}
			if !ok {
				continue
			}
			le.cell.Set(value)
		}
	}()

	return le
}

func matches(ops []model.Operation, id int64, entityType model.EntityType) bool {
	for _, op := range ops {
		if op.ID == id && op.Type == entityType {
			return true
		}
	}
	return false
}

// Get returns the latest value.
func (le *LiveEntity[T]) Get() T {
	return le.cell.Get()
}

// Subscribe returns a channel receiving every republished value.
func (le *LiveEntity[T]) Subscribe() (<-chan T, func()) {
	return le.cell.Subscribe()
}

// Stop unsubscribes from the change stream and closes the projection.
func (le *LiveEntity[T]) Stop() {
	le.cancel()
	<-le.done
	le.cell.Close()
}
