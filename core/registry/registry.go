// Package registry tracks mechanic availability and answers proximity queries.
//
// The Registry is the only writer of mechanic records. Heartbeats update the
// online flag and position; the busy flag is written exclusively through
// Reserve and Release, which the booking state machine calls while holding
// its per-booking lock.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/autoaid/core/logger"
	"github.com/kilianp07/autoaid/core/model"
)

// Query describes a candidate search.
type Query struct {
	Origin       model.Position
	RadiusMeters float64
	Capability   model.ServiceType
	Limit        int
	// Exclude lists mechanic ids that must not be returned.
	Exclude map[string]struct{}
}

type entry struct {
	m model.Mechanic
	// heardAt is the local receive time of the last heartbeat, used for
	// staleness only so that repeated identical reports leave m untouched.
	heardAt time.Time
}

// Registry is an in-memory mechanic availability store.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	dir        Directory
	log        logger.Logger
	staleAfter time.Duration
	now        func() time.Time
}

// New creates a Registry backed by the given identity directory.
func New(dir Directory, cfg Config, log logger.Logger) *Registry {
	cfg.SetDefaults()
	if dir == nil {
		dir = OpenDirectory{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Registry{
		entries:    make(map[string]*entry),
		dir:        dir,
		log:        log,
		staleAfter: cfg.StaleAfter(),
		now:        time.Now,
	}
}

// SetClock overrides the time source. It is intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// SetOnline creates or refreshes the record of a mechanic. The position is
// taken only when the mechanic comes online. A nil caps keeps the known
// capabilities, falling back to the directory specializations for new
// records. Repeating the call with the same data leaves the record unchanged.
func (r *Registry) SetOnline(ctx context.Context, id string, pos model.Position, caps model.Capabilities) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	r.mu.RLock()
	_, known := r.entries[id]
	r.mu.RUnlock()

	var profile Profile
	if !known {
		p, err := r.dir.Lookup(ctx, id)
		if err != nil {
			return fmt.Errorf("set online %s: %w", id, err)
		}
		profile = p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		if caps == nil {
			caps = model.NewCapabilities(profile.Specializations...)
		}
		e = &entry{m: model.Mechanic{
			ID:        id,
			Rating:    profile.Rating,
			TotalJobs: profile.TotalJobs,
		}}
		r.entries[id] = e
	}
	// an online record only moves through UpdatePosition, which orders
	// updates by their timestamp
	if !e.m.Online || e.m.Stale {
		r.log.Infof("mechanic %s online at %s", id, pos)
		e.m.Position = pos
	}
	e.m.Online = true
	e.m.Stale = false
	if caps != nil {
		e.m.Capabilities = caps.Clone()
	}
	e.heardAt = r.now()
	r.updateGauge()
	return nil
}

// SetOffline marks the mechanic offline and returns the booking it holds,
// if any. The record and its history are kept.
func (r *Registry) SetOffline(_ context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return "", fmt.Errorf("set offline %s: %w", id, model.ErrNotFound)
	}
	if e.m.Online {
		r.log.Infof("mechanic %s offline", id)
	}
	e.m.Online = false
	r.updateGauge()
	return e.m.BookingID, nil
}

// UpdatePosition records a new position. Updates for offline mechanics are
// ignored, as are updates not newer than the last accepted one.
func (r *Registry) UpdatePosition(_ context.Context, id string, pos model.Position, at time.Time) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("update position %s: %w", id, model.ErrNotFound)
	}
	if !e.m.Online {
		return nil
	}
	now := r.now()
	if at.IsZero() {
		at = now
	}
	if !at.After(e.m.LastSeen) {
		r.log.Debugf("discarding late position for %s (%s <= %s)", id, at.Format(time.RFC3339Nano), e.m.LastSeen.Format(time.RFC3339Nano))
		return nil
	}
	e.m.Position = pos
	e.m.LastSeen = at
	e.heardAt = now
	return nil
}

// FindCandidates returns up to q.Limit available mechanics with the required
// capability within q.RadiusMeters of q.Origin, nearest first. Ties are
// broken by higher rating, then lower id. An empty result is not an error.
func (r *Registry) FindCandidates(ctx context.Context, q Query) ([]model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.RadiusMeters <= 0 || q.Limit <= 0 {
		return nil, nil
	}
	r.mu.RLock()
	idx := newSites(len(r.entries))
	for _, e := range r.entries {
		if !e.m.Available() || !e.m.Capabilities.Has(q.Capability) {
			continue
		}
		if _, skip := q.Exclude[e.m.ID]; skip {
			continue
		}
		idx.add(e.m.Position, member{id: e.m.ID, rating: e.m.Rating})
	}
	r.mu.RUnlock()

	out, err := idx.nearest(q.Origin, q.RadiusMeters)
	if err != nil {
		return nil, fmt.Errorf("proximity index: %w", err)
	}
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	if len(out) == 0 {
		candidateQueries.WithLabelValues("empty").Inc()
	} else {
		candidateQueries.WithLabelValues("hit").Inc()
	}
	return out, nil
}

// Reserve marks the mechanic busy for bookingID. Reserving again for the
// same booking is a no-op.
func (r *Registry) Reserve(mechanicID, bookingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[mechanicID]
	if !ok {
		return fmt.Errorf("reserve %s: %w", mechanicID, model.ErrNotFound)
	}
	if !e.m.Online || e.m.Stale {
		return fmt.Errorf("reserve %s: offline: %w", mechanicID, model.ErrNotFound)
	}
	if e.m.Busy {
		if e.m.BookingID == bookingID {
			return nil
		}
		return fmt.Errorf("reserve %s for %s: held by %s: %w", mechanicID, bookingID, e.m.BookingID, model.ErrMechanicBusy)
	}
	e.m.Busy = true
	e.m.BookingID = bookingID
	return nil
}

// Release clears the busy flag if it is held for bookingID. It reports
// whether the flag was cleared.
func (r *Registry) Release(mechanicID, bookingID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[mechanicID]
	if !ok || !e.m.Busy || e.m.BookingID != bookingID {
		return false
	}
	e.m.Busy = false
	e.m.BookingID = ""
	return true
}

// RecordCompletion bumps the completed job counter of a mechanic.
func (r *Registry) RecordCompletion(mechanicID string) {
	r.mu.Lock()
	if e, ok := r.entries[mechanicID]; ok {
		e.m.TotalJobs++
	}
	r.mu.Unlock()
}

// Sweep marks online mechanics silent for longer than the stale interval as
// stale and offline. It returns their ids.
func (r *Registry) Sweep(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []string
	for id, e := range r.entries {
		if !e.m.Online || now.Sub(e.heardAt) <= r.staleAfter {
			continue
		}
		e.m.Online = false
		e.m.Stale = true
		stale = append(stale, id)
	}
	if len(stale) > 0 {
		sort.Strings(stale)
		r.log.Warnf("marked %d mechanics stale: %v", len(stale), stale)
		r.updateGauge()
	}
	return stale
}

// Get returns a snapshot of one mechanic.
func (r *Registry) Get(id string) (model.Mechanic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return model.Mechanic{}, fmt.Errorf("mechanic %s: %w", id, model.ErrNotFound)
	}
	return e.m.Clone(), nil
}

// List returns snapshots of all mechanics sorted by id.
func (r *Registry) List() []model.Mechanic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]model.Mechanic, 0, len(r.entries))
	for _, e := range r.entries {
		res = append(res, e.m.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// updateGauge must be called with r.mu held.
func (r *Registry) updateGauge() {
	n := 0
	for _, e := range r.entries {
		if e.m.Online {
			n++
		}
	}
	mechanicsOnline.Set(float64(n))
}
