package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/autoaid/auth"
	"github.com/kilianp07/autoaid/core/booking/journal"
	"github.com/kilianp07/autoaid/core/dispatch"
	"github.com/kilianp07/autoaid/core/metrics"
	"github.com/kilianp07/autoaid/core/offer"
	"github.com/kilianp07/autoaid/core/registry"
	"github.com/kilianp07/autoaid/infra/mqtt"
)

type Config struct {
	MQTT     mqtt.Config     `json:"mqtt"`
	HTTP     HTTPConfig      `json:"http"`
	Auth     auth.JWTConf    `json:"auth"`
	Registry registry.Config `json:"registry"`
	Dispatch dispatch.Config `json:"dispatch"`
	Offer    offer.Config    `json:"offer"`
	Journal  journal.Config  `json:"journal"`
	Metrics  metrics.Config  `json:"metrics"`
	Logging  LoggingConfig   `json:"logging"`
	Sentry   SentryConfig    `json:"sentry"`
}

// Load reads the file at path and applies K_ prefixed environment overrides,
// e.g. K_MQTT__BROKER sets mqtt.broker. An empty path loads the environment
// only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.HTTP.SetDefaults()
	c.Auth.SetDefaults()
	c.Registry.SetDefaults()
	c.Dispatch.SetDefaults()
	c.Offer.SetDefaults()
	c.Journal.SetDefaults()
	c.Logging.SetDefaults()
	c.Sentry.SetDefaults()
}

// Validate checks every section and stops at the first error.
func (c Config) Validate() error {
	checks := []interface{ Validate() error }{
		c.MQTT, c.HTTP, c.Registry, c.Dispatch, c.Offer, c.Journal, c.Metrics, c.Logging,
	}
	for _, v := range checks {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
