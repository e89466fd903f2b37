package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	searchesTotal  *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	roundsPerBook  prometheus.Histogram
	retriesTotal   *prometheus.CounterVec
	mechanicsLost  prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Histogram, *prometheus.CounterVec, prometheus.Counter) {
	searches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_searches_total",
			Help: "Completed booking searches by outcome",
		},
		[]string{"outcome"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_search_duration_seconds",
			Help:    "Time from search start to its outcome",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)
	rounds := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_rounds_per_booking",
			Help:    "Offer rounds needed per search",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_transient_retries_total",
			Help: "Retries of transient failures during search",
		},
		[]string{"operation"},
	)
	lost := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_mechanic_lost_total",
			Help: "Assigned bookings cancelled because the mechanic went offline",
		},
	)
	return searches, dur, rounds, retries, lost
}

func init() {
	searchesTotal, searchDuration, roundsPerBook, retriesTotal, mechanicsLost = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(searchesTotal, searchDuration, roundsPerBook, retriesTotal, mechanicsLost)
}

// ResetMetrics reinitializes the collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	searchesTotal, searchDuration, roundsPerBook, retriesTotal, mechanicsLost = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
