// Package watch provides the reactive primitives the engines publish state
// through: a single-writer observable value cell and a broadcast event bus.
// Every piece of component-owned state has exactly one writer; all other
// components read via subscription.
package watch

import "sync"

const subscriberBuffer = 16

// Cell is an observable value with one writer and any number of subscribers.
// Every Set publishes the new value to all subscribers; a slow subscriber
// loses the oldest buffered value, never the newest.
type Cell[T any] struct {
	mu     sync.RWMutex
	value  T
	subs   map[int]chan T
	nextID int
	closed bool
}

// NewCell creates a cell holding the initial value.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
		subs:  make(map[int]chan T),
	}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set stores and publishes a new value.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.value = v
	for _, ch := range c.subs {
		offer(ch, v)
	}
}

// Subscribe returns a channel receiving every published value from now on,
// and a cancel function releasing the subscription.
func (c *Cell[T]) Subscribe() (<-chan T, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan T, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextID
	c.nextID++
	c.subs[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close closes all subscriber channels. Set becomes a no-op afterwards.
func (c *Cell[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// offer delivers v without blocking: when the buffer is full the oldest
// value is dropped so the newest always lands.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
