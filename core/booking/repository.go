package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/autoaid/core/booking/journal"
	"github.com/kilianp07/autoaid/core/logger"
	"github.com/kilianp07/autoaid/core/model"
	"github.com/kilianp07/autoaid/internal/eventbus"
)

type deps struct {
	reg     Reserver
	journal journal.Store
	bus     eventbus.EventBus
	log     logger.Logger
	now     func() time.Time
}

// Repository holds the machine of every live booking.
type Repository struct {
	mu       sync.RWMutex
	machines map[string]*Machine
	deps     *deps
}

// NewRepository creates an empty repository. reg receives the busy flag
// updates of every machine.
func NewRepository(reg Reserver, log logger.Logger) *Repository {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Repository{
		machines: make(map[string]*Machine),
		deps:     &deps{reg: reg, log: log, now: time.Now},
	}
}

// SetJournal configures the audit store. It must be called before bookings
// are created.
func (r *Repository) SetJournal(store journal.Store) { r.deps.journal = store }

// SetBus configures the event bus receiving TransitionEvents. It must be
// called before bookings are created.
func (r *Repository) SetBus(bus eventbus.EventBus) { r.deps.bus = bus }

// SetClock overrides the time source. It is intended for tests.
func (r *Repository) SetClock(now func() time.Time) { r.deps.now = now }

// Create validates req and registers a new pending booking.
func (r *Repository) Create(ctx context.Context, req model.BookingRequest) (*Machine, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := r.deps.now()
	m := &Machine{
		b: model.Booking{
			ID:          uuid.NewString(),
			CustomerID:  req.CustomerID,
			ServiceType: req.ServiceType,
			Pickup:      *req.Location,
			Urgent:      req.Urgent,
			Status:      model.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		deps: r.deps,
	}
	created := model.Transition{
		To:    model.StatusPending,
		Event: model.EventCreated,
		Actor: model.Actor{Role: model.RoleCustomer, ID: req.CustomerID},
		At:    now,
	}
	m.b.History = append(m.b.History, created)

	r.mu.Lock()
	r.machines[m.b.ID] = m
	r.mu.Unlock()
	r.deps.record(ctx, m.b, created)
	activeBookings.Inc()
	return m, nil
}

// Get returns the machine of a booking.
func (r *Repository) Get(id string) (*Machine, error) {
	r.mu.RLock()
	m, ok := r.machines[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
	}
	return m, nil
}

// Filter restricts List results. Zero values match everything.
type Filter struct {
	CustomerID string
	MechanicID string
	Status     model.Status
}

// List returns snapshots of the bookings matching f, oldest first.
func (r *Repository) List(f Filter) []model.Booking {
	r.mu.RLock()
	ms := make([]*Machine, 0, len(r.machines))
	for _, m := range r.machines {
		ms = append(ms, m)
	}
	r.mu.RUnlock()

	res := make([]model.Booking, 0, len(ms))
	for _, m := range ms {
		b := m.Snapshot()
		if f.CustomerID != "" && b.CustomerID != f.CustomerID {
			continue
		}
		if f.MechanicID != "" && b.MechanicID != f.MechanicID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res
}

// Purge drops terminal bookings closed before cutoff and returns how many
// were removed. Their history remains in the journal.
func (r *Repository) Purge(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, m := range r.machines {
		m.mu.Lock()
		closed := m.b.ClosedAt
		m.mu.Unlock()
		if closed != nil && closed.Before(cutoff) {
			delete(r.machines, id)
			n++
		}
	}
	activeBookings.Sub(float64(n))
	return n
}

// ActiveForMechanic returns the non-terminal booking assigned to mechanicID.
func (r *Repository) ActiveForMechanic(mechanicID string) (*Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.machines {
		m.mu.Lock()
		hit := m.b.MechanicID == mechanicID && !m.b.Status.Terminal()
		m.mu.Unlock()
		if hit {
			return m, true
		}
	}
	return nil, false
}
