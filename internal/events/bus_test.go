package events_test

import (
	"testing"
	"time"

	"github.com/snapzone/snapzone/internal/events"
	"github.com/snapzone/snapzone/internal/models"
)

func TestBusSubscribePublish(t *testing.T) {
	bus := events.NewBus()

	ch := bus.Subscribe("test1")

	bus.Publish(models.ChangeEvent{
		Type:   models.VolumeChanged,
		Entity: models.EntityZone,
		Index:  1,
		Old:    10,
		New:    42,
		At:     time.Now(),
	})

	select {
	case got := <-ch:
		if got.Type != models.VolumeChanged || got.Index != 1 || got.New != 42 {
			t.Errorf("got %+v", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe("test-unsub")

	bus.Unsubscribe("test-unsub")

	// Channel should be closed
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBusDropsEventsWhenFull(t *testing.T) {
	bus := events.NewBus()
	bus.Subscribe("slow-reader")

	// Publish more than the subscriber buffer without reading — must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(models.ChangeEvent{Type: models.MuteChanged, Entity: models.EntityZone, Index: 1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
	if bus.Dropped() == 0 {
		t.Error("expected dropped events to be counted")
	}
}

func TestBusSubscriberCount(t *testing.T) {
	bus := events.NewBus()
	if bus.SubscriberCount() != 0 {
		t.Error("expected zero subscribers")
	}
	bus.Subscribe("a")
	bus.Subscribe("b")
	if got := bus.SubscriberCount(); got != 2 {
		t.Errorf("got %d subscribers, want 2", got)
	}
	bus.Unsubscribe("a")
	if got := bus.SubscriberCount(); got != 1 {
		t.Errorf("got %d subscribers, want 1", got)
	}
}
