package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/autoaid/core/model"
)

// Profile is the identity-system view of a mechanic.
type Profile struct {
	ID              string              `json:"id"`
	Rating          float64             `json:"rating"`
	TotalJobs       int                 `json:"total_jobs"`
	Specializations []model.ServiceType `json:"specializations"`
}

// Directory resolves mechanic identities. Lookup returns model.ErrNotFound
// for identities the surrounding system does not know.
type Directory interface {
	Lookup(ctx context.Context, mechanicID string) (Profile, error)
}

// OpenDirectory accepts every mechanic id.
type OpenDirectory struct{}

func (OpenDirectory) Lookup(_ context.Context, id string) (Profile, error) {
	if id == "" {
		return Profile{}, fmt.Errorf("mechanic id empty: %w", model.ErrNotFound)
	}
	return Profile{ID: id}, nil
}

// StaticDirectory serves a fixed set of profiles, typically from configuration.
type StaticDirectory struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewStaticDirectory returns a directory containing the given profiles.
func NewStaticDirectory(profiles ...Profile) *StaticDirectory {
	d := &StaticDirectory{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return d
}

// Put adds or replaces a profile.
func (d *StaticDirectory) Put(p Profile) {
	d.mu.Lock()
	d.profiles[p.ID] = p
	d.mu.Unlock()
}

func (d *StaticDirectory) Lookup(_ context.Context, id string) (Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("mechanic %s: %w", id, model.ErrNotFound)
	}
	return p, nil
}
