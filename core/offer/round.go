package offer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/autoaid/core/model"
)

// Decision is a mechanic's answer to an offer.
type Decision string

const (
	Accept  Decision = "accept"
	Decline Decision = "decline"
)

// ParseDecision validates a decision received from a client.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case Accept, Decline:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown decision %q", model.ErrInvalidRequest, s)
}

// Outcome is how a round resolved.
type Outcome string

const (
	Assigned  Outcome = "assigned"
	Exhausted Outcome = "exhausted"
	Cancelled Outcome = "cancelled"
)

// State is the per-candidate response state within a round.
type State string

const (
	StatePending   State = "pending"
	StateAccepting State = "accepting"
	StateAccepted  State = "accepted"
	StateDeclined  State = "declined"
	StateTimedOut  State = "timed_out"
	StateRejected  State = "rejected"
)

func (s State) settled() bool {
	return s != StatePending && s != StateAccepting
}

// Result is the resolution of a round.
type Result struct {
	Outcome    Outcome
	MechanicID string
}

// Round is one time-boxed broadcast of a booking to ranked candidates.
// It resolves exactly once.
type Round struct {
	ID           string
	BookingID    string
	Number       int
	Candidates   []model.Candidate
	RadiusMeters float64
	StartedAt    time.Time
	Deadline     time.Time

	mu         sync.Mutex
	states     map[string]State
	result     Result
	resolvedAt time.Time
	once       sync.Once
	done       chan struct{}
	timer      *time.Timer
}

func newRound(id string, req RoundRequest, now time.Time) *Round {
	r := &Round{
		ID:           id,
		BookingID:    req.BookingID,
		Number:       req.Number,
		Candidates:   append([]model.Candidate(nil), req.Candidates...),
		RadiusMeters: req.RadiusMeters,
		StartedAt:    now,
		Deadline:     now.Add(req.Timeout),
		states:       make(map[string]State, len(req.Candidates)),
		done:         make(chan struct{}),
	}
	for _, c := range req.Candidates {
		r.states[c.MechanicID] = StatePending
	}
	return r
}

// Wait blocks until the round resolves or ctx is done.
func (r *Round) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Done is closed when the round resolves.
func (r *Round) Done() <-chan struct{} { return r.done }

// Resolved returns the result once the round has resolved.
func (r *Round) Resolved() (Result, bool) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.result, true
	default:
		return Result{}, false
	}
}

// States returns a copy of the candidate response states.
func (r *Round) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.states))
	for k, v := range r.states {
		out[k] = v
	}
	return out
}

// CandidateIDs returns the mechanic ids in rank order.
func (r *Round) CandidateIDs() []string {
	ids := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		ids[i] = c.MechanicID
	}
	return ids
}

func (r *Round) rank(mechanicID string) int {
	for _, c := range r.Candidates {
		if c.MechanicID == mechanicID {
			return c.Rank
		}
	}
	return 0
}

// set updates the state of a candidate and reports whether every candidate
// has now settled without acceptance.
func (r *Round) set(mechanicID string, st State) (exhausted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[mechanicID]; !ok {
		return false
	}
	r.states[mechanicID] = st
	for _, s := range r.states {
		if !s.settled() || s == StateAccepted {
			return false
		}
	}
	return true
}

func (r *Round) state(mechanicID string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[mechanicID]
	return st, ok
}

// resolve records res if the round is still open. It reports whether this
// call resolved the round.
func (r *Round) resolve(res Result, now time.Time) bool {
	won := false
	r.once.Do(func() {
		r.mu.Lock()
		r.result = res
		r.resolvedAt = now
		if r.timer != nil {
			r.timer.Stop()
		}
		r.mu.Unlock()
		close(r.done)
		won = true
	})
	return won
}

func (r *Round) resolvedBefore(t time.Time) bool {
	select {
	case <-r.done:
	default:
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolvedAt.Before(t)
}
