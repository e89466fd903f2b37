package dispatch

import (
	"fmt"
	"time"
)

// Step is one rung of the search ladder.
type Step struct {
	RadiusMeters float64 `json:"radius_meters"`
	Limit        int     `json:"limit"`
}

// SearchConfig controls the candidate search and offer rounds.
type SearchConfig struct {
	Ladder              []Step `json:"ladder"`
	MaxRounds           int    `json:"max_rounds"`
	RoundTimeoutSeconds int    `json:"round_timeout_seconds"`
	// MinRoundTimeoutSeconds bounds the shortened timeout of urgent bookings.
	MinRoundTimeoutSeconds int `json:"min_round_timeout_seconds"`
}

// RetryConfig bounds the retries of transient failures.
type RetryConfig struct {
	MaxAttempts       int `json:"max_attempts"`
	InitialIntervalMs int `json:"initial_interval_ms"`
	MaxIntervalMs     int `json:"max_interval_ms"`
}

// Config defines dispatch-related settings.
type Config struct {
	Search SearchConfig `json:"search"`
	Retry  RetryConfig  `json:"retry"`
	// RetentionMinutes is how long terminal bookings stay in memory.
	RetentionMinutes int `json:"retention_minutes"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if len(c.Search.Ladder) == 0 {
		c.Search.Ladder = []Step{{RadiusMeters: 5000, Limit: 3}, {RadiusMeters: 10000, Limit: 5}}
	}
	if c.Search.MaxRounds == 0 {
		c.Search.MaxRounds = 3
	}
	if c.Search.RoundTimeoutSeconds == 0 {
		c.Search.RoundTimeoutSeconds = 30
	}
	if c.Search.MinRoundTimeoutSeconds == 0 {
		c.Search.MinRoundTimeoutSeconds = 5
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialIntervalMs == 0 {
		c.Retry.InitialIntervalMs = 200
	}
	if c.Retry.MaxIntervalMs == 0 {
		c.Retry.MaxIntervalMs = 2000
	}
	if c.RetentionMinutes == 0 {
		c.RetentionMinutes = 60
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Search.Ladder) == 0 {
		return fmt.Errorf("dispatch.search.ladder must not be empty")
	}
	prev := 0.0
	for i, s := range c.Search.Ladder {
		if s.RadiusMeters <= 0 || s.Limit <= 0 {
			return fmt.Errorf("dispatch.search.ladder[%d]: radius and limit must be positive", i)
		}
		if s.RadiusMeters < prev {
			return fmt.Errorf("dispatch.search.ladder[%d]: radius must not shrink", i)
		}
		prev = s.RadiusMeters
	}
	if c.Search.MaxRounds <= 0 {
		return fmt.Errorf("dispatch.search.max_rounds must be positive")
	}
	if c.Search.RoundTimeoutSeconds <= 0 {
		return fmt.Errorf("dispatch.search.round_timeout_seconds must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("dispatch.retry.max_attempts must be positive")
	}
	return nil
}

// RoundTimeout returns the round timeout of a booking. Urgent bookings get
// half the configured timeout, never less than the minimum or more than the
// full timeout.
func (c SearchConfig) RoundTimeout(urgent bool) time.Duration {
	full := time.Duration(c.RoundTimeoutSeconds) * time.Second
	if !urgent {
		return full
	}
	d := full / 2
	floor := time.Duration(c.MinRoundTimeoutSeconds) * time.Second
	if floor > full {
		floor = full
	}
	if d < floor {
		d = floor
	}
	return d
}

// StepFor returns the ladder step at index i, sticking at the last step.
// Urgent bookings offer twice as many candidates per step.
func (c SearchConfig) StepFor(i int, urgent bool) Step {
	if i >= len(c.Ladder) {
		i = len(c.Ladder) - 1
	}
	s := c.Ladder[i]
	if urgent {
		s.Limit *= 2
	}
	return s
}

// Retention returns how long terminal bookings are kept in memory.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}
