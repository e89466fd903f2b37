package dispatch

import (
	"context"
	"time"

	"github.com/kilianp07/autoaid/core/events"
	"github.com/kilianp07/autoaid/core/metrics"
)

// Run sweeps stale mechanics, resolved rounds and old bookings every
// interval until ctx is canceled. Resolved rounds are kept for
// roundRetention so late responses still get a precise error.
func (c *Coordinator) Run(ctx context.Context, interval, roundRetention time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx, roundRetention)
		}
	}
}

// Sweep runs one janitor pass.
func (c *Coordinator) Sweep(ctx context.Context, roundRetention time.Duration) {
	now := c.now()
	for _, id := range c.reg.Sweep(now) {
		c.broker.DropMechanic(id)
		mech, err := c.reg.Get(id)
		if err != nil {
			continue
		}
		c.publish(events.MechanicEvent{MechanicID: id, Stale: true, BookingID: mech.BookingID})
		if err := c.loseMechanic(ctx, id, mech.BookingID); err != nil {
			c.log.Errorf("stale mechanic %s: %v", id, err)
		}
	}
	if n := c.broker.Sweep(now.Add(-roundRetention)); n > 0 {
		c.log.Debugf("forgot %d resolved rounds", n)
	}
	if n := c.repo.Purge(now.Add(-c.cfg.Retention())); n > 0 {
		c.log.Debugf("purged %d closed bookings", n)
	}
	if rec, ok := c.sink.(metrics.FleetSizeRecorder); ok {
		online := 0
		for _, m := range c.reg.List() {
			if m.Online {
				online++
			}
		}
		if err := rec.RecordFleetSize(online); err != nil {
			c.log.Errorf("metrics error: %v", err)
		}
	}
}
