package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/autoaid/core/events"
	coremetrics "github.com/kilianp07/autoaid/core/metrics"
	"github.com/kilianp07/autoaid/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards round,
// offer response and mechanic events to the sink recorders it implements.
// It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				collect(sink, ev, time.Now())
			}
		}
	}()
}

func collect(sink coremetrics.MetricsSink, ev eventbus.Event, now time.Time) {
	switch e := ev.(type) {
	case events.RoundEvent:
		if e.Phase != events.RoundResolved {
			return
		}
		if r, ok := sink.(coremetrics.RoundRecorder); ok {
			_ = r.RecordRound(coremetrics.RoundEvent{
				BookingID:    e.BookingID,
				RoundID:      e.RoundID,
				Number:       e.Number,
				Candidates:   e.Candidates,
				RadiusMeters: e.RadiusMeters,
				Outcome:      e.Outcome,
				MechanicID:   e.MechanicID,
				Duration:     e.Duration,
				Time:         now,
			})
		}
	case events.OfferResponseEvent:
		if r, ok := sink.(coremetrics.OfferRecorder); ok {
			_ = r.RecordOfferResponse(coremetrics.OfferResponseEvent{
				BookingID:  e.BookingID,
				RoundID:    e.RoundID,
				MechanicID: e.MechanicID,
				Decision:   e.Decision,
				Result:     e.Result,
				Latency:    e.Latency,
				Time:       now,
			})
		}
	case events.MechanicEvent:
		if r, ok := sink.(coremetrics.MechanicStateRecorder); ok {
			_ = r.RecordMechanicState(coremetrics.MechanicStateEvent{
				MechanicID: e.MechanicID,
				Online:     e.Online,
				Busy:       e.BookingID != "",
				Stale:      e.Stale,
				Time:       now,
			})
		}
	}
}
