package simulator

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/kilianp07/autoaid/core/model"
)

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func randFloat() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Float64()
}

func randNorm() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.NormFloat64()
}

// FleetConfig holds parameters for bulk fleet generation.
type FleetConfig struct {
	Size           int
	Center         model.Position
	SpreadMeters   float64
	Capabilities   []model.ServiceType
	DisconnectRate float64
	Availability   [24]float64
}

// MechanicTemplate allows overriding generated mechanics.
type MechanicTemplate struct {
	Lat          *float64            `json:"lat"`
	Lng          *float64            `json:"lng"`
	Capabilities []model.ServiceType `json:"capabilities"`
}

// GenerateFleet creates Size mechanics with IDs mech0001..mechNNNN spread
// uniformly over a disc of SpreadMeters around Center. Each mechanic gets
// the first capability plus every other one with even odds.
func GenerateFleet(cfg FleetConfig, tmpl map[string]MechanicTemplate) []*SimulatedMechanic {
	if cfg.Size <= 0 {
		return nil
	}
	ms := make([]*SimulatedMechanic, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		id := fmt.Sprintf("mech%04d", i+1)
		r := cfg.SpreadMeters * math.Sqrt(randFloat())
		theta := 2 * math.Pi * randFloat()
		pos := cfg.Center.Offset(r*math.Cos(theta), r*math.Sin(theta))

		var caps []model.ServiceType
		for j, st := range cfg.Capabilities {
			if j == 0 || randFloat() < 0.5 {
				caps = append(caps, st)
			}
		}
		if t, ok := tmpl[id]; ok {
			if t.Lat != nil && t.Lng != nil {
				pos = model.Position{Lat: *t.Lat, Lng: *t.Lng}
			}
			if len(t.Capabilities) > 0 {
				caps = t.Capabilities
			}
		}
		ms[i] = &SimulatedMechanic{
			ID:             id,
			Position:       pos,
			Capabilities:   model.NewCapabilities(caps...),
			DisconnectRate: cfg.DisconnectRate,
			Availability:   cfg.Availability,
		}
	}
	return ms
}

// LoadAvailabilityProfile reads an hourly availability profile from JSON.
func LoadAvailabilityProfile(data []byte) ([24]float64, error) {
	var m map[string]float64
	var prof [24]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return prof, err
	}
	for h, v := range m {
		var hour int
		if _, err := fmt.Sscanf(h, "%d", &hour); err != nil {
			continue
		}
		if hour >= 0 && hour < 24 {
			prof[hour] = v
		}
	}
	return prof, nil
}

// AlwaysAvailable is a profile keeping mechanics online around the clock.
func AlwaysAvailable() [24]float64 {
	var prof [24]float64
	for i := range prof {
		prof[i] = 1
	}
	return prof
}
