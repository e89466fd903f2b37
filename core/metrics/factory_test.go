package metrics_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/autoaid/core/factory"
	metrics "github.com/kilianp07/autoaid/core/metrics"
	_ "github.com/kilianp07/autoaid/infra/metrics"
)

func TestNewMetricsSink_Shapes(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	multi, ok := s.(*metrics.MultiSink)
	require.True(t, ok, "got %T", s)
	assert.Len(t, multi.Sinks, 2)
	assert.NoError(t, s.RecordBookingOutcome(metrics.BookingOutcome{BookingID: "b1"}))
}

func TestNewMetricsSink_UnknownTypeListsBuiltins(t *testing.T) {
	_, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "statsd"}})
	require.Error(t, err)
	for _, known := range []string{"influx", "nop", "prometheus"} {
		assert.Contains(t, err.Error(), known)
	}
	assert.Error(t, metrics.RegisterMetricsSink("nop", func(map[string]any) (metrics.MetricsSink, error) {
		return metrics.NopSink{}, nil
	}))
}

func TestConfig_DecodeYAMLWithUnreachableInflux(t *testing.T) {
	data := `prom_addr: ":9100"
sinks:
  - type: nop
  - type: influx
    conf:
      url: http://127.0.0.1:1
      org: roadside
      bucket: bookings
`
	var cfg metrics.Config
	require.NoError(t, yaml.Unmarshal([]byte(data), &cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":9100", cfg.PromAddr)
	require.Len(t, cfg.Sinks, 2)
	assert.Equal(t, "bookings", cfg.Sinks[1].Conf["bucket"])

	s, err := metrics.NewMetricsSink(cfg.Sinks)
	require.NoError(t, err)
	multi := s.(*metrics.MultiSink)
	// a failed health check degrades the influx sink to a no-op
	assert.IsType(t, metrics.NopSink{}, multi.Sinks[1])
}

func TestConfig_ValidateRequiresType(t *testing.T) {
	var cfg metrics.Config
	require.NoError(t, json.Unmarshal([]byte(`{"sinks":[{"conf":{"url":"x"}}]}`), &cfg))
	assert.ErrorContains(t, cfg.Validate(), "metrics.sinks[0]")
}
