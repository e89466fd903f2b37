package offer

import (
	"fmt"
	"time"
)

// Config controls how long resolved rounds are remembered.
type Config struct {
	RetentionSeconds int `json:"retention_seconds"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.RetentionSeconds == 0 {
		c.RetentionSeconds = 600
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RetentionSeconds < 0 {
		return fmt.Errorf("offer.retention_seconds must not be negative")
	}
	return nil
}

// Retention returns how long resolved rounds are kept.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}
