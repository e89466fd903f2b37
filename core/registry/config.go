package registry

import (
	"fmt"
	"time"

	"github.com/kilianp07/autoaid/core/factory"
)

// Config defines registry related settings.
type Config struct {
	// StaleAfterSeconds is the silence interval after which a mechanic is
	// marked stale and treated as offline.
	StaleAfterSeconds int `json:"stale_after_seconds"`
	// SweepIntervalSeconds controls how often stale mechanics are collected.
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
	// Directory selects the identity source by type: "open", "static" or
	// "http".
	Directory factory.ModuleConfig `json:"directory"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.StaleAfterSeconds <= 0 {
		c.StaleAfterSeconds = 120
	}
	if c.SweepIntervalSeconds <= 0 {
		c.SweepIntervalSeconds = 15
	}
	if c.Directory.Type == "" {
		c.Directory.Type = "open"
	}
}

// Validate checks the directory selection.
func (c Config) Validate() error {
	if c.Directory.Type == "" {
		return fmt.Errorf("registry.directory.type is required")
	}
	if c.StaleAfterSeconds < c.SweepIntervalSeconds {
		return fmt.Errorf("registry.stale_after_seconds must not be shorter than sweep_interval_seconds")
	}
	return nil
}

func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
