package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/kilianp07/autoaid/core/booking"
	"github.com/kilianp07/autoaid/core/model"
	"github.com/kilianp07/autoaid/core/offer"
	"github.com/kilianp07/autoaid/core/registry"
)

// Outcome is the result of a search.
type Outcome string

const (
	OutcomeAssigned    Outcome = "assigned"
	OutcomeNoMechanic  Outcome = "no_mechanic"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeInterrupted Outcome = "interrupted"
)

// Search runs the search loop of a searching booking until it is assigned,
// cancelled or runs out of rounds. HandleNewBooking calls it in the
// background; calling it again for the same booking is not supported.
func (c *Coordinator) Search(ctx context.Context, bookingID string) (Outcome, error) {
	m, err := c.repo.Get(bookingID)
	if err != nil {
		return "", err
	}
	start := c.now()
	out, err := c.search(ctx, m)
	if out != "" {
		searchesTotal.WithLabelValues(string(out)).Inc()
		searchDuration.WithLabelValues(string(out)).Observe(c.now().Sub(start).Seconds())
		roundsPerBook.Observe(float64(m.Snapshot().Rounds))
	}
	return out, err
}

func (c *Coordinator) search(ctx context.Context, m *booking.Machine) (Outcome, error) {
	step := 0
	number := 0
	for {
		b := m.Snapshot()
		if b.Status != model.StatusSearching {
			return settled(b), nil
		}
		cands, radius, next, err := c.findAlongLadder(ctx, b, step)
		if err != nil {
			return c.interrupted(ctx, m, err)
		}
		step = next
		if len(cands) == 0 {
			return c.noMechanic(ctx, m, func() error { return m.NoMechanicAvailable(ctx) })
		}

		number++
		timeout := c.roundTimeout(b.Urgent)
		info := model.RoundInfo{
			ID:         uuid.NewString(),
			Number:     number,
			Candidates: candidateIDs(cands),
			Deadline:   c.now().Add(timeout),
		}
		if err := m.BeginRound(info); err != nil {
			// cancelled between the snapshot and now
			return settled(m.Snapshot()), nil
		}
		req := offer.RoundRequest{
			RoundID:      info.ID,
			BookingID:    b.ID,
			Number:       number,
			Pickup:       b.Pickup,
			ServiceType:  b.ServiceType,
			Urgent:       b.Urgent,
			Candidates:   cands,
			RadiusMeters: radius,
			Timeout:      timeout,
		}
		retry := number < c.cfg.Search.MaxRounds
		round, err := c.startRound(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return c.interrupted(ctx, m, err)
			}
			c.log.Warnf("booking %s round %d could not be offered: %v", b.ID, number, err)
			if out, done := c.exhaust(ctx, m, info.ID, retry); done {
				return out, nil
			}
			step++
			continue
		}
		c.log.Debugf("booking %s round %d offered to %d mechanics within %.0fm", b.ID, number, len(cands), radius)

		res, err := round.Wait(ctx)
		if err != nil {
			c.broker.CancelRound(b.ID)
			return c.interrupted(ctx, m, err)
		}
		switch res.Outcome {
		case offer.Assigned:
			return c.assigned(ctx, m), nil
		case offer.Cancelled:
			return settled(m.Snapshot()), nil
		}
		if out, done := c.exhaust(ctx, m, info.ID, retry); done {
			return out, nil
		}
		step++
	}
}

// findAlongLadder queries the registry from ladder step i upwards until a
// step yields candidates. It returns the candidates, the radius used and the
// step index reached. Empty steps do not consume a round.
func (c *Coordinator) findAlongLadder(ctx context.Context, b model.Booking, i int) ([]model.Candidate, float64, int, error) {
	last := len(c.cfg.Search.Ladder) - 1
	if i > last {
		i = last
	}
	for {
		s := c.cfg.Search.StepFor(i, b.Urgent)
		q := registry.Query{
			Origin:       b.Pickup,
			RadiusMeters: s.RadiusMeters,
			Capability:   b.ServiceType,
			Limit:        s.Limit,
		}
		var cands []model.Candidate
		err := c.retry(ctx, "find_candidates", func() error {
			var err error
			cands, err = c.reg.FindCandidates(ctx, q)
			return err
		})
		if err != nil {
			return nil, 0, i, err
		}
		if len(cands) > 0 || i == last {
			return cands, s.RadiusMeters, i, nil
		}
		c.log.Debugf("booking %s: no candidates within %.0fm, widening", b.ID, s.RadiusMeters)
		i++
	}
}

func (c *Coordinator) startRound(ctx context.Context, req offer.RoundRequest) (*offer.Round, error) {
	var round *offer.Round
	err := c.retry(ctx, "start_round", func() error {
		r, err := c.broker.StartRound(ctx, req)
		if err != nil {
			if errors.Is(err, offer.ErrNotifyFailed) {
				return err
			}
			return backoff.Permanent(err)
		}
		round = r
		return nil
	})
	return round, err
}

// exhaust applies an exhausted round to the booking. It reports done when
// the search is over.
func (c *Coordinator) exhaust(ctx context.Context, m *booking.Machine, roundID string, retry bool) (Outcome, bool) {
	st, err := m.RoundExhausted(ctx, roundID, retry)
	if err != nil {
		// an accept committed after the deadline fired, or the booking was
		// cancelled meanwhile
		b := m.Snapshot()
		if b.Status.Engaged() {
			return c.assigned(ctx, m), true
		}
		return settled(b), true
	}
	if st == model.StatusCancelled {
		out, _ := c.noMechanic(ctx, m, nil)
		return out, true
	}
	return "", false
}

// noMechanic finishes a search without assignment. cancel, when set, moves
// the booking to cancelled(no_mechanic) first.
func (c *Coordinator) noMechanic(ctx context.Context, m *booking.Machine, cancel func() error) (Outcome, error) {
	if cancel != nil {
		if err := cancel(); err != nil {
			return settled(m.Snapshot()), nil
		}
	}
	b := m.Snapshot()
	c.log.Infof("booking %s: no mechanic available after %d rounds", b.ID, b.Rounds)
	c.closed(b)
	c.notifyCustomer(ctx, b)
	return OutcomeNoMechanic, nil
}

func (c *Coordinator) assigned(ctx context.Context, m *booking.Machine) Outcome {
	b := m.Snapshot()
	c.log.Infof("booking %s assigned to %s", b.ID, b.MechanicID)
	c.notifyCustomer(ctx, b)
	return OutcomeAssigned
}

// interrupted handles a search stopped by ctx or a persistent failure. The
// booking stays searching when ctx ended; otherwise it is cancelled by the
// system.
func (c *Coordinator) interrupted(ctx context.Context, m *booking.Machine, cause error) (Outcome, error) {
	if ctx.Err() != nil {
		return OutcomeInterrupted, ctx.Err()
	}
	if err := m.Cancel(ctx, model.CancelNoMechanic, model.SystemActor); err == nil {
		b := m.Snapshot()
		c.closed(b)
		c.notifyCustomer(ctx, b)
	}
	return OutcomeNoMechanic, fmt.Errorf("search %s: %w", m.ID(), cause)
}

// retry runs op with exponential backoff. Context errors are never retried.
func (c *Coordinator) retry(ctx context.Context, name string, op func() error) error {
	attempts := 0
	bo := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.Retry.MaxAttempts-1)), ctx)
	return backoff.Retry(func() error {
		if attempts > 0 {
			retriesTotal.WithLabelValues(name).Inc()
		}
		attempts++
		err := op()
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

func (c *Coordinator) exponentialBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(c.cfg.Retry.InitialIntervalMs) * time.Millisecond
	b.MaxInterval = time.Duration(c.cfg.Retry.MaxIntervalMs) * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

func settled(b model.Booking) Outcome {
	switch {
	case b.Status.Engaged() || b.Status == model.StatusCompleted:
		return OutcomeAssigned
	case b.Status == model.StatusCancelled && b.CancelReason == model.CancelNoMechanic:
		return OutcomeNoMechanic
	case b.Status == model.StatusCancelled:
		return OutcomeCancelled
	}
	return OutcomeInterrupted
}

func candidateIDs(cands []model.Candidate) []string {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.MechanicID
	}
	return ids
}
