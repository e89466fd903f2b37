package offer

import "github.com/prometheus/client_golang/prometheus"

var (
	roundsTotal     *prometheus.CounterVec
	offersSent      prometheus.Counter
	offersFailed    prometheus.Counter
	raceLost        prometheus.Counter
	responseLatency *prometheus.HistogramVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Counter, prometheus.Counter, *prometheus.HistogramVec) {
	rounds := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offer_rounds_total",
			Help: "Resolved offer rounds by outcome",
		},
		[]string{"outcome"},
	)
	sent := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offers_sent_total",
			Help: "Offer notifications delivered to the transport",
		},
	)
	failed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offers_failed_total",
			Help: "Offer notifications the transport rejected",
		},
	)
	lost := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offer_accept_race_lost_total",
			Help: "Accepts rejected because another mechanic won the booking",
		},
	)
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offer_response_latency_seconds",
			Help:    "Time between round start and a mechanic response",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"decision"},
	)
	return rounds, sent, failed, lost, lat
}

func init() {
	roundsTotal, offersSent, offersFailed, raceLost, responseLatency = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers offer metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(roundsTotal, offersSent, offersFailed, raceLost, responseLatency)
}

// ResetMetrics reinitializes the collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	roundsTotal, offersSent, offersFailed, raceLost, responseLatency = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
