// Package offer runs offer rounds: a booking is broadcast to a ranked set of
// candidate mechanics and the round resolves on the first accepted offer,
// when every candidate has declined, or when its deadline fires.
//
// The broker never decides who wins. Accepts are forwarded to an Acceptor
// (the booking state machine) whose atomic transition picks the winner.
package offer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/autoaid/core/events"
	"github.com/kilianp07/autoaid/core/logger"
	"github.com/kilianp07/autoaid/core/model"
	"github.com/kilianp07/autoaid/internal/eventbus"
)

// ErrNotifyFailed is returned by StartRound when no candidate could be notified.
var ErrNotifyFailed = errors.New("offer notification failed for every candidate")

// Notification is the payload pushed to one candidate.
type Notification struct {
	BookingID     string            `json:"bookingId"`
	RoundID       string            `json:"roundId"`
	MechanicID    string            `json:"mechanicId"`
	CandidateRank int               `json:"candidateRank"`
	Distance      float64           `json:"distanceMeters"`
	Pickup        model.Position    `json:"pickupLocation"`
	ServiceType   model.ServiceType `json:"serviceType"`
	Urgent        bool              `json:"isUrgent"`
	ExpiresAt     time.Time         `json:"expiresAt"`
}

// Notifier delivers offers to mechanics.
type Notifier interface {
	NotifyOffer(ctx context.Context, n Notification) error
}

// Acceptor commits an acceptance. Exactly one concurrent caller per round may
// succeed.
type Acceptor interface {
	OfferAccepted(ctx context.Context, bookingID, roundID, mechanicID string) error
}

// RoundRequest describes a round to start. RoundID may be preset by the
// caller so the booking can record the round before offers go out.
type RoundRequest struct {
	RoundID      string
	BookingID    string
	Number       int
	Pickup       model.Position
	ServiceType  model.ServiceType
	Urgent       bool
	Candidates   []model.Candidate
	RadiusMeters float64
	Timeout      time.Duration
}

// Response is a mechanic's answer to an offer.
type Response struct {
	BookingID  string   `json:"bookingId"`
	RoundID    string   `json:"roundId"`
	MechanicID string   `json:"mechanicId"`
	Decision   Decision `json:"decision"`
}

// Broker tracks the open offer rounds.
type Broker struct {
	mu     sync.Mutex
	rounds map[string]*Round
	active map[string]*Round

	notifier Notifier
	acceptor Acceptor
	bus      eventbus.EventBus
	log      logger.Logger
	now      func() time.Time
}

// NewBroker creates a broker. A nil logger discards output.
func NewBroker(n Notifier, a Acceptor, log logger.Logger) *Broker {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Broker{
		rounds:   make(map[string]*Round),
		active:   make(map[string]*Round),
		notifier: n,
		acceptor: a,
		log:      log,
		now:      time.Now,
	}
}

// SetBus configures the event bus receiving round and response events.
func (b *Broker) SetBus(bus eventbus.EventBus) { b.bus = bus }

// StartRound registers a round, notifies every candidate concurrently and
// arms the round deadline. A still open round of the same booking is
// resolved as cancelled first.
func (b *Broker) StartRound(ctx context.Context, req RoundRequest) (*Round, error) {
	if len(req.Candidates) == 0 {
		return nil, fmt.Errorf("booking %s: %w", req.BookingID, model.ErrNoCandidates)
	}
	if req.Timeout <= 0 {
		return nil, fmt.Errorf("%w: round timeout must be positive", model.ErrInvalidRequest)
	}
	id := req.RoundID
	if id == "" {
		id = uuid.NewString()
	}
	r := newRound(id, req, b.now())

	b.mu.Lock()
	prev := b.active[req.BookingID]
	b.rounds[id] = r
	b.active[req.BookingID] = r
	b.mu.Unlock()
	if prev != nil {
		b.finish(prev, Result{Outcome: Cancelled})
	}

	r.mu.Lock()
	r.timer = time.AfterFunc(req.Timeout, func() { b.expire(r) })
	r.mu.Unlock()

	b.publish(events.RoundEvent{
		BookingID:    r.BookingID,
		RoundID:      r.ID,
		Number:       r.Number,
		Phase:        events.RoundStarted,
		Candidates:   len(r.Candidates),
		RadiusMeters: r.RadiusMeters,
	})

	if sent := b.notifyAll(ctx, r, req); sent == 0 {
		b.finish(r, Result{Outcome: Cancelled})
		b.mu.Lock()
		delete(b.rounds, id)
		b.mu.Unlock()
		return nil, fmt.Errorf("booking %s round %s: %w", r.BookingID, r.ID, ErrNotifyFailed)
	}
	return r, nil
}

// notifyAll publishes the offers concurrently and returns how many were sent.
// Candidates that could not be notified are marked timed out.
func (b *Broker) notifyAll(ctx context.Context, r *Round, req RoundRequest) int {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)
	for _, c := range r.Candidates {
		wg.Add(1)
		go func(c model.Candidate) {
			defer wg.Done()
			err := b.notifier.NotifyOffer(ctx, Notification{
				BookingID:     r.BookingID,
				RoundID:       r.ID,
				MechanicID:    c.MechanicID,
				CandidateRank: c.Rank,
				Distance:      c.DistanceMeters,
				Pickup:        req.Pickup,
				ServiceType:   req.ServiceType,
				Urgent:        req.Urgent,
				ExpiresAt:     r.Deadline,
			})
			if err != nil {
				b.log.Warnf("offer %s to %s failed: %v", r.ID, c.MechanicID, err)
				offersFailed.Inc()
				r.set(c.MechanicID, StateTimedOut)
				return
			}
			offersSent.Inc()
			mu.Lock()
			sent++
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return sent
}

// Respond handles a mechanic's answer. Accepts for an exhausted round, or
// from a candidate who declined or timed out, fail with model.ErrStaleOffer.
// Accepts for assigned or cancelled rounds are still forwarded to the
// Acceptor so the booking state machine rejects them.
func (b *Broker) Respond(ctx context.Context, resp Response) error {
	if _, err := ParseDecision(string(resp.Decision)); err != nil {
		return err
	}
	b.mu.Lock()
	r, ok := b.rounds[resp.RoundID]
	b.mu.Unlock()
	if !ok || r.BookingID != resp.BookingID {
		b.responded(resp, "stale", 0)
		return fmt.Errorf("round %s: %w", resp.RoundID, model.ErrStaleOffer)
	}
	prev, ok := r.state(resp.MechanicID)
	if !ok {
		b.responded(resp, "rejected", 0)
		return fmt.Errorf("mechanic %s not offered round %s: %w", resp.MechanicID, r.ID, model.ErrNotFound)
	}
	latency := b.now().Sub(r.StartedAt)
	_, resolved := r.Resolved()

	if resp.Decision == Decline {
		if resolved {
			b.responded(resp, "stale", latency)
			return fmt.Errorf("round %s already resolved: %w", r.ID, model.ErrStaleOffer)
		}
		if prev == StateAccepted {
			return fmt.Errorf("%w: offer already accepted", model.ErrInvalidRequest)
		}
		b.responded(resp, "declined", latency)
		if r.set(resp.MechanicID, StateDeclined) {
			b.finish(r, Result{Outcome: Exhausted})
		}
		return nil
	}

	if res, ok := r.Resolved(); ok && res.Outcome == Exhausted {
		b.responded(resp, "stale", latency)
		return fmt.Errorf("round %s expired: %w", r.ID, model.ErrStaleOffer)
	}
	if prev == StateDeclined || prev == StateTimedOut {
		b.responded(resp, "stale", latency)
		return fmt.Errorf("mechanic %s dropped from round %s (%s): %w", resp.MechanicID, r.ID, prev, model.ErrStaleOffer)
	}
	if !resolved {
		r.set(resp.MechanicID, StateAccepting)
	}
	err := b.acceptor.OfferAccepted(ctx, r.BookingID, r.ID, resp.MechanicID)
	switch {
	case err == nil:
		r.set(resp.MechanicID, StateAccepted)
		b.finish(r, Result{Outcome: Assigned, MechanicID: resp.MechanicID})
		b.responded(resp, "won", latency)
		return nil
	case errors.Is(err, model.ErrAlreadyAssigned):
		raceLost.Inc()
		b.log.Debugf("accept from %s lost race for booking %s", resp.MechanicID, r.BookingID)
		r.set(resp.MechanicID, StateRejected)
		b.responded(resp, "lost", latency)
	case errors.Is(err, model.ErrMechanicBusy):
		// reserved by another booking since the offer went out
		if r.set(resp.MechanicID, StateDeclined) && !resolved {
			b.finish(r, Result{Outcome: Exhausted})
		}
		b.responded(resp, "rejected", latency)
	case errors.Is(err, model.ErrStaleOffer):
		r.set(resp.MechanicID, StateRejected)
		b.responded(resp, "stale", latency)
	default:
		r.set(resp.MechanicID, StateRejected)
		b.responded(resp, "rejected", latency)
	}
	return err
}

// CancelRound resolves the open round of a booking as cancelled. Pending
// offers become moot; late accepts still reach the Acceptor.
func (b *Broker) CancelRound(bookingID string) bool {
	b.mu.Lock()
	r := b.active[bookingID]
	b.mu.Unlock()
	if r == nil {
		return false
	}
	return b.finish(r, Result{Outcome: Cancelled})
}

// DropMechanic treats every pending offer to mechanicID as declined. It is
// used when the mechanic goes offline.
func (b *Broker) DropMechanic(mechanicID string) {
	b.mu.Lock()
	open := make([]*Round, 0, len(b.active))
	for _, r := range b.active {
		open = append(open, r)
	}
	b.mu.Unlock()
	for _, r := range open {
		st, ok := r.state(mechanicID)
		if !ok || st != StatePending {
			continue
		}
		if r.set(mechanicID, StateTimedOut) {
			b.finish(r, Result{Outcome: Exhausted})
		}
	}
}

// Round returns a round by id, including resolved rounds not yet swept.
func (b *Broker) Round(id string) (*Round, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rounds[id]
	return r, ok
}

// Active returns the open round of a booking.
func (b *Broker) Active(bookingID string) (*Round, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.active[bookingID]
	return r, ok
}

// Sweep forgets rounds resolved before cutoff and returns how many were
// removed. Responses to forgotten rounds fail with model.ErrStaleOffer.
func (b *Broker) Sweep(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id, r := range b.rounds {
		if r.resolvedBefore(cutoff) {
			delete(b.rounds, id)
			n++
		}
	}
	return n
}

func (b *Broker) expire(r *Round) {
	r.mu.Lock()
	for id, st := range r.states {
		if st == StatePending {
			r.states[id] = StateTimedOut
		}
	}
	r.mu.Unlock()
	b.finish(r, Result{Outcome: Exhausted})
}

// finish resolves r once and removes it from the open set.
func (b *Broker) finish(r *Round, res Result) bool {
	now := b.now()
	if !r.resolve(res, now) {
		return false
	}
	b.mu.Lock()
	if b.active[r.BookingID] == r {
		delete(b.active, r.BookingID)
	}
	b.mu.Unlock()
	roundsTotal.WithLabelValues(string(res.Outcome)).Inc()
	b.publish(events.RoundEvent{
		BookingID:    r.BookingID,
		RoundID:      r.ID,
		Number:       r.Number,
		Phase:        events.RoundResolved,
		Candidates:   len(r.Candidates),
		RadiusMeters: r.RadiusMeters,
		Outcome:      string(res.Outcome),
		MechanicID:   res.MechanicID,
		Duration:     now.Sub(r.StartedAt),
	})
	b.log.Debugw("offer round resolved", map[string]any{
		"booking_id": r.BookingID,
		"round_id":   r.ID,
		"outcome":    string(res.Outcome),
		"mechanic":   res.MechanicID,
	})
	return true
}

func (b *Broker) responded(resp Response, result string, latency time.Duration) {
	if latency > 0 {
		responseLatency.WithLabelValues(string(resp.Decision)).Observe(latency.Seconds())
	}
	b.publish(events.OfferResponseEvent{
		BookingID:  resp.BookingID,
		RoundID:    resp.RoundID,
		MechanicID: resp.MechanicID,
		Decision:   string(resp.Decision),
		Result:     result,
		Latency:    latency,
	})
}

func (b *Broker) publish(ev eventbus.Event) {
	if b.bus != nil {
		b.bus.Publish(ev)
	}
}
