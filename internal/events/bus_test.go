package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(Event{Tenant: "t1", Topic: "echo:test", WorkID: "w1", Status: StatusAccepted})

	select {
	case ev := <-ch:
		assert.Equal(t, "w1", ev.WorkID)
		assert.Equal(t, StatusAccepted, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("expected event, got none")
	}
}

func TestBus_LossyOnFullBuffer(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for i := 0; i < Capacity+10; i++ {
		bus.Publish(Event{WorkID: "w"})
	}
	// Publish never blocks even when the subscriber never drains.
	require.LessOrEqual(t, len(ch), Capacity)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()
	unsubscribe()
	_, ok := <-ch
	assert.False(t, ok)
}
