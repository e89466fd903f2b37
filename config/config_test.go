package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  password: "pass"
  qos:
    offer: 2
http:
  addr: ":9000"
auth:
  secret: "s3cret"
registry:
  stale_after_seconds: 90
  directory:
    type: "static"
    conf:
      mechanics:
        - id: "m1"
          rating: 4.8
dispatch:
  search:
    max_rounds: 4
    ladder:
      - radius_meters: 3000
        limit: 2
      - radius_meters: 8000
        limit: 4
offer:
  retention_seconds: 120
journal:
  backend: "sqlite"
metrics:
  sinks:
    - type: "prometheus"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "cli"},
		{"username", cfg.MQTT.Username, "user"},
		{"qos", cfg.MQTT.QoS["offer"], byte(2)},
		{"max_retries default", cfg.MQTT.MaxRetries, 3},
		{"http.addr", cfg.HTTP.Addr, ":9000"},
		{"auth.secret", cfg.Auth.Secret, "s3cret"},
		{"auth.issuer default", cfg.Auth.Issuer, "autoaid"},
		{"registry.stale_after", cfg.Registry.StaleAfterSeconds, 90},
		{"registry.directory", cfg.Registry.Directory.Type, "static"},
		{"max_rounds", cfg.Dispatch.Search.MaxRounds, 4},
		{"ladder", len(cfg.Dispatch.Search.Ladder), 2},
		{"ladder[1].limit", cfg.Dispatch.Search.Ladder[1].Limit, 4},
		{"round timeout default", cfg.Dispatch.Search.RoundTimeoutSeconds, 30},
		{"offer.retention", cfg.Offer.RetentionSeconds, 120},
		{"journal.path default", cfg.Journal.Path, "bookings.db"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "prometheus", true},
		{"log level default", cfg.Logging.Level, "info"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
	require.Len(t, cfg.Registry.Directory.Conf["mechanics"], 1)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "config.json", `{"http":{"addr":":9000"},"dispatch":{"search":{"max_rounds":2}}}`)
	t.Setenv("K_HTTP__ADDR", ":7000")
	t.Setenv("K_DISPATCH__SEARCH__ROUND_TIMEOUT_SECONDS", "12")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, 12, cfg.Dispatch.Search.RoundTimeoutSeconds)
	assert.Equal(t, 2, cfg.Dispatch.Search.MaxRounds)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "open", cfg.Registry.Directory.Type)
	assert.Equal(t, "memory", cfg.Journal.Backend)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.False(t, cfg.Auth.Enabled())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeConfig(t, "config.toml", "x = 1"))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(writeConfig(t, "config.yaml", "logging:\n  level: loud\n"))
	assert.ErrorContains(t, err, "unknown log level")

	_, err = Load(writeConfig(t, "config.yaml", "journal:\n  backend: redis\n"))
	assert.ErrorContains(t, err, "unknown backend")

	_, err = Load(writeConfig(t, "config.yaml", "dispatch:\n  search:\n    ladder:\n      - radius_meters: 5000\n        limit: 0\n"))
	assert.ErrorContains(t, err, "ladder[0]")

	_, err = Load(writeConfig(t, "config.yaml", "registry:\n  stale_after_seconds: 10\n  sweep_interval_seconds: 30\n"))
	assert.ErrorContains(t, err, "stale_after_seconds")
}
