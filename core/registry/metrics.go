package registry

import "github.com/prometheus/client_golang/prometheus"

var (
	mechanicsOnline  prometheus.Gauge
	candidateQueries *prometheus.CounterVec
)

func newCollectors() (prometheus.Gauge, *prometheus.CounterVec) {
	online := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "registry_mechanics_online",
		Help: "Number of online mechanics known to the registry",
	})
	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_candidate_queries_total",
		Help: "Candidate queries by result",
	}, []string{"result"})
	return online, queries
}

func init() {
	mechanicsOnline, candidateQueries = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers registry metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(mechanicsOnline, candidateQueries)
}

// ResetMetrics reinitializes the collectors for tests and registers them on
// reg when not nil.
func ResetMetrics(reg prometheus.Registerer) {
	mechanicsOnline, candidateQueries = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
