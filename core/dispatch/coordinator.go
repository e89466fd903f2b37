// Package dispatch drives a booking from creation to assignment. The
// Coordinator owns the retry policy: it queries the registry along a radius
// ladder, runs offer rounds through the broker and decides what happens when
// a round is exhausted.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kilianp07/autoaid/core/booking"
	"github.com/kilianp07/autoaid/core/events"
	"github.com/kilianp07/autoaid/core/logger"
	"github.com/kilianp07/autoaid/core/metrics"
	"github.com/kilianp07/autoaid/core/model"
	"github.com/kilianp07/autoaid/core/monitoring"
	"github.com/kilianp07/autoaid/core/offer"
	"github.com/kilianp07/autoaid/core/registry"
	"github.com/kilianp07/autoaid/internal/eventbus"
)

// CustomerNotice informs a customer about a booking they did not drive.
type CustomerNotice struct {
	BookingID  string             `json:"bookingId"`
	CustomerID string             `json:"customerId"`
	Status     model.Status       `json:"status"`
	Reason     model.CancelReason `json:"reason,omitempty"`
	MechanicID string             `json:"mechanicId,omitempty"`
	At         time.Time          `json:"at"`
}

// CustomerNotifier delivers notices to customers.
type CustomerNotifier interface {
	NotifyCustomer(ctx context.Context, n CustomerNotice) error
}

// NopCustomerNotifier drops every notice.
type NopCustomerNotifier struct{}

func (NopCustomerNotifier) NotifyCustomer(context.Context, CustomerNotice) error { return nil }

// Coordinator composes the registry, the booking repository and the offer
// broker.
type Coordinator struct {
	cfg      Config
	reg      *registry.Registry
	repo     *booking.Repository
	broker   *offer.Broker
	customer CustomerNotifier
	sink     metrics.MetricsSink
	bus      eventbus.EventBus
	log      logger.Logger
	now      func() time.Time

	// roundTimeout and newBackOff are replaced in tests.
	roundTimeout func(urgent bool) time.Duration
	newBackOff   func() backoff.BackOff

	root     context.Context
	stop     context.CancelFunc
	searches sync.WaitGroup
}

// NewCoordinator wires a coordinator. The broker must deliver accepts to the
// repository, typically through an Acceptor.
func NewCoordinator(cfg Config, reg *registry.Registry, repo *booking.Repository, broker *offer.Broker, log logger.Logger) (*Coordinator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil || repo == nil || broker == nil {
		return nil, fmt.Errorf("dispatch: registry, repository and broker are required")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	root, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:      cfg,
		reg:      reg,
		repo:     repo,
		broker:   broker,
		customer: NopCustomerNotifier{},
		sink:     metrics.NopSink{},
		log:      log,
		now:      time.Now,
		root:     root,
		stop:     stop,
	}
	c.roundTimeout = cfg.Search.RoundTimeout
	c.newBackOff = c.exponentialBackOff
	return c, nil
}

// Acceptor adapts a booking repository to the broker's Acceptor port.
type Acceptor struct {
	Repo *booking.Repository
}

// OfferAccepted applies the accept to the booking's state machine.
func (a Acceptor) OfferAccepted(ctx context.Context, bookingID, roundID, mechanicID string) error {
	m, err := a.Repo.Get(bookingID)
	if err != nil {
		return err
	}
	return m.OfferAccepted(ctx, roundID, mechanicID)
}

// SetCustomerNotifier configures the customer notice transport.
func (c *Coordinator) SetCustomerNotifier(n CustomerNotifier) {
	if n != nil {
		c.customer = n
	}
}

// SetMetrics configures the sink receiving booking outcomes.
func (c *Coordinator) SetMetrics(s metrics.MetricsSink) {
	if s != nil {
		c.sink = s
	}
}

// SetBus configures the event bus receiving mechanic events.
func (c *Coordinator) SetBus(bus eventbus.EventBus) { c.bus = bus }

// Close stops in-flight searches and waits for them to return.
func (c *Coordinator) Close() {
	c.stop()
	c.searches.Wait()
}

// HandleNewBooking creates a booking, moves it to searching and starts the
// search in the background. It returns the searching snapshot.
func (c *Coordinator) HandleNewBooking(ctx context.Context, req model.BookingRequest) (model.Booking, error) {
	m, err := c.repo.Create(ctx, req)
	if err != nil {
		return model.Booking{}, err
	}
	if err := m.StartSearch(ctx); err != nil {
		return m.Snapshot(), err
	}
	c.log.Infof("booking %s created by %s for %s", m.ID(), req.CustomerID, req.ServiceType)
	snap := m.Snapshot()
	c.searches.Add(1)
	monitoring.Go(map[string]string{"module": "dispatch", "booking_id": m.ID()}, func() {
		defer c.searches.Done()
		if _, err := c.Search(c.root, m.ID()); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Errorf("search %s: %v", m.ID(), err)
			monitoring.CaptureException(err, map[string]string{"module": "dispatch", "booking_id": m.ID()})
		}
	})
	return snap, nil
}

// Get returns a booking snapshot.
func (c *Coordinator) Get(_ context.Context, id string) (model.Booking, error) {
	m, err := c.repo.Get(id)
	if err != nil {
		return model.Booking{}, err
	}
	return m.Snapshot(), nil
}

// CancelRequest asks for a booking cancellation.
type CancelRequest struct {
	BookingID string
	Actor     model.Actor
	Reason    model.CancelReason
}

// Cancel cancels a booking and any open round. Without a reason the actor's
// role decides it.
func (c *Coordinator) Cancel(ctx context.Context, req CancelRequest) (model.Booking, error) {
	m, err := c.repo.Get(req.BookingID)
	if err != nil {
		return model.Booking{}, err
	}
	reason := req.Reason
	if reason == "" {
		switch req.Actor.Role {
		case model.RoleMechanic:
			reason = model.CancelMechanic
		case model.RoleSystem:
			reason = model.CancelTimeout
		default:
			reason = model.CancelCustomer
		}
	}
	if err := m.Cancel(ctx, reason, req.Actor); err != nil {
		return m.Snapshot(), err
	}
	c.broker.CancelRound(req.BookingID)
	b := m.Snapshot()
	c.closed(b)
	if req.Actor.Role != model.RoleCustomer {
		c.notifyCustomer(ctx, b)
	}
	return b, nil
}

// RespondToOffer forwards a mechanic's answer to the broker.
func (c *Coordinator) RespondToOffer(ctx context.Context, resp offer.Response) error {
	return c.broker.Respond(ctx, resp)
}

// ProgressRequest reports a mechanic-driven lifecycle event.
type ProgressRequest struct {
	BookingID  string      `json:"bookingId"`
	MechanicID string      `json:"mechanicId"`
	Event      model.Event `json:"event"`
	FinalCost  *float64    `json:"finalCost,omitempty"`
}

// Progress applies a progress event to the booking.
func (c *Coordinator) Progress(ctx context.Context, req ProgressRequest) (model.Booking, error) {
	ev, err := model.ParseProgressEvent(string(req.Event))
	if err != nil {
		return model.Booking{}, err
	}
	m, err := c.repo.Get(req.BookingID)
	if err != nil {
		return model.Booking{}, err
	}
	switch ev {
	case model.EventMechanicDeparted:
		err = m.MechanicDeparted(ctx, req.MechanicID)
	case model.EventMechanicArrived:
		err = m.MechanicArrived(ctx, req.MechanicID)
	case model.EventWorkStarted:
		err = m.WorkStarted(ctx, req.MechanicID)
	case model.EventWorkFinished:
		if req.FinalCost == nil {
			return m.Snapshot(), fmt.Errorf("%w: finalCost is required", model.ErrInvalidRequest)
		}
		err = m.WorkFinished(ctx, req.MechanicID, *req.FinalCost)
	}
	b := m.Snapshot()
	if err != nil {
		return b, err
	}
	if b.Status.Terminal() {
		c.closed(b)
	}
	return b, nil
}

// Heartbeat applies a mechanic presence report.
func (c *Coordinator) Heartbeat(ctx context.Context, hb model.Heartbeat) error {
	if err := hb.Validate(); err != nil {
		return err
	}
	if !hb.Online {
		return c.MechanicOffline(ctx, hb.MechanicID)
	}
	cur, err := c.reg.Get(hb.MechanicID)
	known := err == nil && cur.Online
	if !known || hb.Capabilities != nil {
		if err := c.reg.SetOnline(ctx, hb.MechanicID, hb.Position(), hb.Capabilities); err != nil {
			return err
		}
		if !known {
			c.publish(events.MechanicEvent{MechanicID: hb.MechanicID, Online: true, BookingID: cur.BookingID})
		}
	}
	return c.reg.UpdatePosition(ctx, hb.MechanicID, hb.Position(), hb.At)
}

// MechanicOffline marks the mechanic offline, drops its pending offers and
// cancels its assigned booking with reason mechanic_lost.
func (c *Coordinator) MechanicOffline(ctx context.Context, mechanicID string) error {
	held, err := c.reg.SetOffline(ctx, mechanicID)
	if err != nil {
		return err
	}
	c.broker.DropMechanic(mechanicID)
	c.publish(events.MechanicEvent{MechanicID: mechanicID, BookingID: held})
	return c.loseMechanic(ctx, mechanicID, held)
}

func (c *Coordinator) loseMechanic(ctx context.Context, mechanicID, held string) error {
	var m *booking.Machine
	if held != "" {
		found, err := c.repo.Get(held)
		if err != nil {
			return err
		}
		m = found
	} else if found, ok := c.repo.ActiveForMechanic(mechanicID); ok {
		m = found
	}
	if m == nil {
		return nil
	}
	if st := m.Status(); !st.Engaged() {
		return nil
	}
	if err := m.Cancel(ctx, model.CancelMechanicLost, model.SystemActor); err != nil {
		// the booking ended concurrently
		if errors.Is(err, model.ErrInvalidTransition) {
			return nil
		}
		return err
	}
	mechanicsLost.Inc()
	b := m.Snapshot()
	c.log.Warnf("booking %s cancelled: mechanic %s lost", b.ID, mechanicID)
	c.closed(b)
	c.notifyCustomer(ctx, b)
	return nil
}

// closed records the outcome of a terminal booking.
func (c *Coordinator) closed(b model.Booking) {
	out := metrics.BookingOutcome{
		BookingID:   b.ID,
		ServiceType: b.ServiceType,
		Urgent:      b.Urgent,
		Status:      b.Status,
		Reason:      b.CancelReason,
		MechanicID:  b.MechanicID,
		Rounds:      b.Rounds,
		Time:        c.now(),
	}
	if b.AssignedAt != nil {
		out.TimeToAssign = b.AssignedAt.Sub(b.CreatedAt)
	}
	if b.ClosedAt != nil {
		out.Duration = b.ClosedAt.Sub(b.CreatedAt)
	}
	if b.FinalCost != nil {
		out.FinalCost = *b.FinalCost
	}
	if err := c.sink.RecordBookingOutcome(out); err != nil {
		c.log.Errorf("metrics error: %v", err)
	}
}

func (c *Coordinator) notifyCustomer(ctx context.Context, b model.Booking) {
	n := CustomerNotice{
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		Status:     b.Status,
		Reason:     b.CancelReason,
		MechanicID: b.MechanicID,
		At:         c.now(),
	}
	if err := c.customer.NotifyCustomer(context.WithoutCancel(ctx), n); err != nil {
		c.log.Warnf("notify customer %s about %s: %v", b.CustomerID, b.ID, err)
	}
}

func (c *Coordinator) publish(ev eventbus.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}
