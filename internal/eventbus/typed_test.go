package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedBus_SlowSubscriberDropsEvents(t *testing.T) {
	bus := NewTyped[string](2)
	slow := bus.Subscribe()
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		bus.Publish(id)
	}
	assert.Equal(t, uint64(2), bus.Dropped())
	assert.Equal(t, "m1", <-slow)
	assert.Equal(t, "m2", <-slow)

	bus.Publish("m5")
	assert.Equal(t, "m5", <-slow)
	assert.Equal(t, uint64(2), bus.Dropped())
}

func TestTypedBus_DefaultBuffer(t *testing.T) {
	bus := NewTyped[int](0)
	ch := bus.Subscribe()
	for i := 0; i < DefaultBuffer; i++ {
		bus.Publish(i)
	}
	assert.Zero(t, bus.Dropped())
	assert.Len(t, ch, DefaultBuffer)
}
