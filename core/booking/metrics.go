package booking

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal *prometheus.CounterVec
	activeBookings   prometheus.Gauge
)

func newCollectors() (*prometheus.CounterVec, prometheus.Gauge) {
	tr := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_total",
		Help: "Committed booking transitions",
	}, []string{"from", "to"})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "booking_records_in_memory",
		Help: "Bookings currently held by the repository",
	})
	return tr, active
}

func init() {
	transitionsTotal, activeBookings = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers booking metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(transitionsTotal, activeBookings)
}

// ResetMetrics reinitializes the collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	transitionsTotal, activeBookings = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
