// Package booking owns the authoritative lifecycle of each booking.
//
// A Machine serializes every transition of one booking behind its own mutex.
// Transitions are check-and-set: they either commit completely (status,
// history, busy flag) or fail with the state left untouched.
package booking

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/autoaid/core/booking/journal"
	"github.com/kilianp07/autoaid/core/events"
	"github.com/kilianp07/autoaid/core/model"
)

// Reserver manages the busy flag of mechanics. It is implemented by the
// mechanic registry.
type Reserver interface {
	Reserve(mechanicID, bookingID string) error
	Release(mechanicID, bookingID string) bool
	RecordCompletion(mechanicID string)
}

// Machine is the state machine of a single booking.
type Machine struct {
	mu   sync.Mutex
	b    model.Booking
	deps *deps
}

// ID returns the booking id.
func (m *Machine) ID() string { return m.b.ID }

// Snapshot returns a copy of the current booking.
func (m *Machine) Snapshot() model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.b.Clone()
}

// Status returns the current status.
func (m *Machine) Status() model.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.b.Status
}

// StartSearch moves a pending booking to searching.
func (m *Machine) StartSearch(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.b.Status != model.StatusPending {
		return m.invalid(model.EventStartSearch, model.StatusSearching, "")
	}
	m.commit(ctx, model.StatusSearching, model.EventStartSearch, model.SystemActor, nil)
	return nil
}

// BeginRound records the metadata of a new offer round. The booking must be
// searching. Responses are only accepted for the most recent round.
func (m *Machine) BeginRound(info model.RoundInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.b.Status != model.StatusSearching {
		return m.invalid(model.EventRoundStarted, model.StatusSearching, "")
	}
	info.Candidates = append([]string(nil), info.Candidates...)
	m.b.Round = &info
	m.b.Rounds++
	m.b.UpdatedAt = m.deps.now()
	return nil
}

// OfferAccepted assigns the booking to mechanicID if the booking is still
// searching and roundID is the current round. It is linearizable: among
// concurrent callers exactly one succeeds, the others get
// model.ErrAlreadyAssigned. The winner's busy flag is set before the lock
// is released; losers never touch the registry.
func (m *Machine) OfferAccepted(ctx context.Context, roundID, mechanicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.b.Status.Terminal():
		return m.invalid(model.EventOfferAccepted, model.StatusAssigned, "")
	case m.b.Status.Engaged():
		if m.b.MechanicID == mechanicID && m.b.Round != nil && m.b.Round.ID == roundID {
			// duplicate delivery of the winning accept
			return nil
		}
		return fmt.Errorf("booking %s: %w", m.b.ID, model.ErrAlreadyAssigned)
	case m.b.Status != model.StatusSearching:
		return m.invalid(model.EventOfferAccepted, model.StatusAssigned, "")
	}
	if m.b.Round == nil || m.b.Round.ID != roundID {
		return fmt.Errorf("booking %s round %s: %w", m.b.ID, roundID, model.ErrStaleOffer)
	}
	if !contains(m.b.Round.Candidates, mechanicID) {
		return fmt.Errorf("mechanic %s not offered round %s: %w", mechanicID, roundID, model.ErrNotFound)
	}
	if err := m.deps.reg.Reserve(mechanicID, m.b.ID); err != nil {
		return err
	}
	now := m.deps.now()
	m.b.MechanicID = mechanicID
	m.b.AssignedAt = &now
	m.commit(ctx, model.StatusAssigned, model.EventOfferAccepted,
		model.Actor{Role: model.RoleMechanic, ID: mechanicID}, func(tr *model.Transition) { tr.RoundID = roundID })
	return nil
}

// RoundExhausted resolves the current round without acceptance. With retry
// the booking stays searching for another round; otherwise it is cancelled
// with reason no_mechanic. It returns the resulting status.
func (m *Machine) RoundExhausted(ctx context.Context, roundID string, retry bool) (model.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.b.Status != model.StatusSearching {
		return m.b.Status, m.invalid(model.EventRoundExhausted, model.StatusSearching, "")
	}
	if m.b.Round == nil || m.b.Round.ID != roundID {
		return m.b.Status, fmt.Errorf("booking %s round %s: %w", m.b.ID, roundID, model.ErrStaleOffer)
	}
	m.b.Round = nil
	if retry {
		m.commit(ctx, model.StatusSearching, model.EventRoundExhausted, model.SystemActor,
			func(tr *model.Transition) { tr.RoundID = roundID })
		return model.StatusSearching, nil
	}
	m.cancelLocked(ctx, model.CancelNoMechanic, model.SystemActor)
	return model.StatusCancelled, nil
}

// NoMechanicAvailable cancels a searching booking whose search found no
// candidate at all.
func (m *Machine) NoMechanicAvailable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.b.Status != model.StatusSearching {
		return m.invalid(model.EventCancel, model.StatusCancelled, "")
	}
	m.cancelLocked(ctx, model.CancelNoMechanic, model.SystemActor)
	return nil
}

// MechanicDeparted moves an assigned booking to en_route.
func (m *Machine) MechanicDeparted(ctx context.Context, mechanicID string) error {
	return m.progress(ctx, model.EventMechanicDeparted, mechanicID, model.StatusAssigned, model.StatusEnRoute, nil)
}

// MechanicArrived moves an en_route booking to arrived.
func (m *Machine) MechanicArrived(ctx context.Context, mechanicID string) error {
	return m.progress(ctx, model.EventMechanicArrived, mechanicID, model.StatusEnRoute, model.StatusArrived, nil)
}

// WorkStarted moves an arrived booking to in_progress.
func (m *Machine) WorkStarted(ctx context.Context, mechanicID string) error {
	return m.progress(ctx, model.EventWorkStarted, mechanicID, model.StatusArrived, model.StatusInProgress, nil)
}

// WorkFinished completes the booking with the final cost and frees the
// mechanic.
func (m *Machine) WorkFinished(ctx context.Context, mechanicID string, finalCost float64) error {
	if finalCost < 0 {
		return fmt.Errorf("%w: final cost must not be negative", model.ErrInvalidRequest)
	}
	return m.progress(ctx, model.EventWorkFinished, mechanicID, model.StatusInProgress, model.StatusCompleted, &finalCost)
}

func (m *Machine) progress(ctx context.Context, ev model.Event, mechanicID string, from, to model.Status, cost *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.b.Status != from {
		return m.invalid(ev, to, "")
	}
	if mechanicID != m.b.MechanicID {
		return m.invalid(ev, to, "mechanic is not assigned to this booking")
	}
	if to == model.StatusCompleted {
		c := *cost
		now := m.deps.now()
		m.b.FinalCost = &c
		m.b.ClosedAt = &now
		m.deps.reg.Release(m.b.MechanicID, m.b.ID)
		m.deps.reg.RecordCompletion(m.b.MechanicID)
	}
	m.commit(ctx, to, ev, model.Actor{Role: model.RoleMechanic, ID: mechanicID}, nil)
	return nil
}

// Cancel moves any non-terminal booking to cancelled. Only the booking's
// customer, its assigned mechanic or the system may cancel. Cancelling a
// terminal booking fails with a TransitionError.
func (m *Machine) Cancel(ctx context.Context, reason model.CancelReason, actor model.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.b.Status.Terminal() {
		return m.invalid(model.EventCancel, model.StatusCancelled, "")
	}
	switch actor.Role {
	case model.RoleSystem:
	case model.RoleCustomer:
		if actor.ID != m.b.CustomerID {
			return m.invalid(model.EventCancel, model.StatusCancelled, "customer does not own this booking")
		}
	case model.RoleMechanic:
		if m.b.MechanicID == "" || actor.ID != m.b.MechanicID {
			return m.invalid(model.EventCancel, model.StatusCancelled, "mechanic is not assigned to this booking")
		}
	default:
		return m.invalid(model.EventCancel, model.StatusCancelled, "unknown actor role")
	}
	m.cancelLocked(ctx, reason, actor)
	return nil
}

// cancelLocked must be called with m.mu held on a non-terminal booking.
func (m *Machine) cancelLocked(ctx context.Context, reason model.CancelReason, actor model.Actor) {
	now := m.deps.now()
	if m.b.MechanicID != "" {
		m.deps.reg.Release(m.b.MechanicID, m.b.ID)
	}
	a := actor
	m.b.CancelReason = reason
	m.b.CancelledBy = &a
	m.b.ClosedAt = &now
	m.b.Round = nil
	m.commit(ctx, model.StatusCancelled, model.EventCancel, actor, nil)
}

// commit appends the transition and notifies the journal and the bus. It
// must be called with m.mu held.
func (m *Machine) commit(ctx context.Context, to model.Status, ev model.Event, actor model.Actor, edit func(*model.Transition)) {
	now := m.deps.now()
	tr := model.Transition{
		From:       m.b.Status,
		To:         to,
		Event:      ev,
		Actor:      actor,
		MechanicID: m.b.MechanicID,
		At:         now,
	}
	if edit != nil {
		edit(&tr)
	}
	m.b.Status = to
	m.b.UpdatedAt = now
	m.b.History = append(m.b.History, tr)
	m.deps.record(ctx, m.b, tr)
}

func (m *Machine) invalid(ev model.Event, attempted model.Status, reason string) error {
	return &model.TransitionError{Current: m.b.Status, Attempted: attempted, Event: ev, Reason: reason}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// record writes tr to the journal and publishes it on the bus.
func (d *deps) record(ctx context.Context, b model.Booking, tr model.Transition) {
	rec := journal.Record{
		Timestamp:  tr.At,
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		MechanicID: tr.MechanicID,
		From:       tr.From,
		To:         tr.To,
		Event:      tr.Event,
		Actor:      tr.Actor,
		RoundID:    tr.RoundID,
	}
	if tr.To == model.StatusCancelled {
		rec.Reason = b.CancelReason
	}
	if tr.To == model.StatusCompleted && b.FinalCost != nil {
		c := *b.FinalCost
		rec.FinalCost = &c
	}
	if d.journal != nil {
		// the transition is committed in memory; a failed audit write is
		// reported but does not undo it
		if err := d.journal.Append(context.WithoutCancel(ctx), rec); err != nil {
			d.log.Errorf("journal append %s %s: %v", b.ID, tr.Event, err)
		}
	}
	transitionsTotal.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	if d.bus != nil {
		d.bus.Publish(events.TransitionEvent{
			BookingID:  b.ID,
			CustomerID: b.CustomerID,
			From:       tr.From,
			To:         tr.To,
			Event:      tr.Event,
			Actor:      tr.Actor,
			MechanicID: tr.MechanicID,
			Reason:     rec.Reason,
			At:         tr.At,
		})
	}
	d.log.Debugw("booking transition", map[string]any{
		"booking_id": b.ID,
		"from":       string(tr.From),
		"to":         string(tr.To),
		"event":      string(tr.Event),
		"actor":      tr.Actor.String(),
	})
}
