package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transition struct {
	BookingID string
	To        string
}

func TestBus_FanOut(t *testing.T) {
	bus := New()
	var _ EventBus = bus
	a, b := bus.Subscribe(), bus.Subscribe()
	bus.Publish(transition{BookingID: "b1", To: "searching"})

	for _, ch := range []<-chan Event{a, b} {
		ev := <-ch
		tr, ok := ev.(transition)
		require.True(t, ok)
		assert.Equal(t, "searching", tr.To)
	}
	bus.Unsubscribe(a)
	assert.Equal(t, 1, bus.Subscribers())
	_, open := <-a
	assert.False(t, open)
}

func TestBus_CloseThenUnsubscribe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Close()
	bus.Close()
	_, open := <-ch
	assert.False(t, open)
	assert.NotPanics(t, func() { bus.Unsubscribe(ch) })
	assert.NotPanics(t, func() { bus.Publish(transition{}) })

	late := bus.Subscribe()
	_, open = <-late
	assert.False(t, open)
}
