// Package simulator plays a fleet of mechanics against the dispatch service
// over MQTT.
package simulator

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
)

// Run generates the fleet described by cfg and runs it until ctx is done.
func Run(ctx context.Context, cfg Config, progress ProgressReporter) error {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	prof := AlwaysAvailable()
	if cfg.AvailabilityFile != "" {
		data, err := os.ReadFile(cfg.AvailabilityFile)
		if err != nil {
			return err
		}
		if prof, err = LoadAvailabilityProfile(data); err != nil {
			return err
		}
	}
	var tmpl map[string]MechanicTemplate
	if cfg.TemplateFile != "" {
		data, err := os.ReadFile(cfg.TemplateFile)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &tmpl); err != nil {
			return err
		}
	}
	fleet := GenerateFleet(FleetConfig{
		Size:           cfg.Count,
		Center:         cfg.Center,
		SpreadMeters:   cfg.SpreadMeters,
		Capabilities:   cfg.Capabilities,
		DisconnectRate: cfg.DisconnectRate,
		Availability:   prof,
	}, tmpl)
	strat := RandomResponse{Delay: cfg.AcceptLatency, DeclineRate: cfg.DeclineRate, DropRate: cfg.DropRate}

	var wg sync.WaitGroup
	for _, m := range fleet {
		m.Broker = cfg.Broker
		m.Strategy = strat
		m.Interval = cfg.Interval
		m.JobStep = cfg.JobStep
		m.Progress = progress
		wg.Add(1)
		go func(m *SimulatedMechanic) {
			defer wg.Done()
			if err := m.Run(ctx); err != nil {
				log.Printf("%s: %v", m.ID, err)
			}
		}(m)
	}
	log.Printf("simulating %d mechanics around %s", len(fleet), cfg.Center)
	wg.Wait()
	return nil
}
