package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/autoaid/core/events"
	coremetrics "github.com/kilianp07/autoaid/core/metrics"
	"github.com/kilianp07/autoaid/internal/eventbus"
)

type captureSink struct {
	coremetrics.NopSink
	mu        sync.Mutex
	rounds    []coremetrics.RoundEvent
	responses []coremetrics.OfferResponseEvent
	mechanics []coremetrics.MechanicStateEvent
}

func (c *captureSink) RecordRound(ev coremetrics.RoundEvent) error {
	c.mu.Lock()
	c.rounds = append(c.rounds, ev)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) RecordOfferResponse(ev coremetrics.OfferResponseEvent) error {
	c.mu.Lock()
	c.responses = append(c.responses, ev)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) RecordMechanicState(ev coremetrics.MechanicStateEvent) error {
	c.mu.Lock()
	c.mechanics = append(c.mechanics, ev)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) counts() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rounds), len(c.responses), len(c.mechanics)
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &captureSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink)

	// the subscription is registered synchronously
	bus.Publish(events.RoundEvent{BookingID: "b1", Phase: events.RoundStarted})
	bus.Publish(events.RoundEvent{BookingID: "b1", Phase: events.RoundResolved, Outcome: "assigned", MechanicID: "m1"})
	bus.Publish(events.OfferResponseEvent{BookingID: "b1", MechanicID: "m1", Decision: "accept", Result: "won"})
	bus.Publish(events.MechanicEvent{MechanicID: "m2", Online: false, Stale: true})

	require.Eventually(t, func() bool {
		r, o, m := sink.counts()
		return r == 1 && o == 1 && m == 1
	}, time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "assigned", sink.rounds[0].Outcome)
	assert.Equal(t, "won", sink.responses[0].Result)
	assert.True(t, sink.mechanics[0].Stale)
}

func TestStartEventCollector_NilArgs(t *testing.T) {
	StartEventCollector(context.Background(), nil, coremetrics.NopSink{})
	StartEventCollector(context.Background(), eventbus.New(), nil)
}
