package simulator

import (
	"fmt"
	"time"

	"github.com/kilianp07/autoaid/core/model"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker string
	// APIURL enables job progress reporting over HTTP when set.
	APIURL string
	Count  int
	Center model.Position
	// SpreadMeters is the radius around Center where mechanics start.
	SpreadMeters   float64
	Capabilities   []model.ServiceType
	Interval       time.Duration
	AcceptLatency  time.Duration
	DeclineRate    float64
	DropRate       float64
	DisconnectRate float64
	// JobStep is the delay between two progress events of a job.
	JobStep          time.Duration
	AvailabilityFile string
	TemplateFile     string
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Count <= 0 {
		c.Count = 1
	}
	if c.SpreadMeters <= 0 {
		c.SpreadMeters = 3000
	}
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.JobStep <= 0 {
		c.JobStep = 5 * time.Second
	}
	if len(c.Capabilities) == 0 {
		c.Capabilities = []model.ServiceType{model.ServiceFlatTire, model.ServiceSOSJumpstart, model.ServiceSOSTowing}
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if err := c.Center.Validate(); err != nil {
		return fmt.Errorf("center: %w", err)
	}
	for _, r := range []float64{c.DeclineRate, c.DropRate, c.DisconnectRate} {
		if r < 0 || r > 1 {
			return fmt.Errorf("rates must be within [0,1]")
		}
	}
	for _, st := range c.Capabilities {
		if !st.Valid() {
			return fmt.Errorf("unknown service type %s", st)
		}
	}
	return nil
}
