package watch

import (
	"testing"
	"time"

	"AuraFM/model"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
		panic("unreachable")
	}
}

func TestCellFanOut(t *testing.T) {
	cell := NewCell(0)
	a, cancelA := cell.Subscribe()
	defer cancelA()
	b, cancelB := cell.Subscribe()
	defer cancelB()

	cell.Set(7)

	if got := recv(t, a); got != 7 {
		t.Errorf("subscriber a got %d, want 7", got)
	}
	if got := recv(t, b); got != 7 {
		t.Errorf("subscriber b got %d, want 7", got)
	}
	if got := cell.Get(); got != 7 {
		t.Errorf("Get() = %d, want 7", got)
	}
}

func TestCellSlowSubscriberKeepsNewest(t *testing.T) {
	cell := NewCell(0)
	ch, cancel := cell.Subscribe()
	defer cancel()

	// Overflow the buffer without draining.
	for i := 1; i <= subscriberBuffer*2; i++ {
		cell.Set(i)
	}

	var last int
	for {
		select {
		case v := <-ch:
			last = v
			continue
		default:
		}
		break
	}
	if last != subscriberBuffer*2 {
		t.Errorf("newest delivered value = %d, want %d", last, subscriberBuffer*2)
	}
}

func TestCellCancelStopsDelivery(t *testing.T) {
	cell := NewCell(0)
	ch, cancel := cell.Subscribe()
	cancel()

	cell.Set(1)
	if _, ok := <-ch; ok {
		t.Error("cancelled subscription channel should be closed")
	}
}

func TestBusDeliversOnlyAfterSubscribe(t *testing.T) {
	bus := NewBus[string]()
	bus.Publish("early")

	ch, cancel := bus.Subscribe()
	defer cancel()
	bus.Publish("late")

	if got := recv(t, ch); got != "late" {
		t.Errorf("got %q, want %q", got, "late")
	}
}

func TestLiveEntityRepublishesOnlyMatchingOps(t *testing.T) {
	events := NewBus[[]model.Operation]()
	defer events.Close()

	fetched := 0
	le := NewLiveEntity("v1", 42, model.EntityChannel, events,
		func(id int64) (string, bool, error) {
			fetched++
			return "v2", true, nil
		})
	defer le.Stop()

	ch, cancel := le.Subscribe()
	defer cancel()

	// Unrelated id and unrelated type never cause a publish.
	events.Publish([]model.Operation{{ID: 7, Type: model.EntityChannel, Kind: model.OpUpsert}})
	events.Publish([]model.Operation{{ID: 42, Type: model.EntityBroadcast, Kind: model.OpUpsert}})
	events.Publish([]model.Operation{{ID: 42, Type: model.EntityChannel, Kind: model.OpUpsert}})

	if got := recv(t, ch); got != "v2" {
		t.Errorf("republished value = %q, want %q", got, "v2")
	}
	if fetched != 1 {
		t.Errorf("fetcher called %d times, want 1", fetched)
	}
	if got := le.Get(); got != "v2" {
		t.Errorf("Get() = %q, want %q", got, "v2")
	}
}
