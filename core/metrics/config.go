package metrics

import (
	"fmt"

	"github.com/kilianp07/autoaid/core/factory"
)

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PromAddr is the listen address of the /metrics endpoint. Empty keeps it
	// on the API server.
	PromAddr string `json:"prom_addr" yaml:"prom_addr"`
}

// Validate checks that every sink names a type.
func (c Config) Validate() error {
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("metrics.sinks[%d]: type is required", i)
		}
	}
	return nil
}
