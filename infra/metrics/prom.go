package metrics

import (
	coremetrics "github.com/kilianp07/autoaid/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records booking events in Prometheus metrics.
type PromSink struct {
	outcomes  *prometheus.CounterVec
	assign    *prometheus.HistogramVec
	rounds    *prometheus.CounterVec
	responses *prometheus.CounterVec
	fleet     prometheus.Gauge
}

// NewPromSink registers booking metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately, see StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_outcomes_total",
		Help: "Bookings that reached a terminal state",
	}, []string{"service_type", "status", "reason"})
	assign := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "booking_time_to_assign_seconds",
		Help:    "Time between booking creation and mechanic assignment",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"service_type"})
	rounds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_round_outcomes_total",
		Help: "Offer rounds by outcome",
	}, []string{"outcome"})
	responses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_responses_total",
		Help: "Mechanic responses by decision and result",
	}, []string{"decision", "result"})
	fleet := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_mechanics_online",
		Help: "Number of mechanics online at the last janitor pass",
	})

	var err error
	if outcomes, err = register(reg, outcomes); err != nil {
		return nil, err
	}
	if assign, err = register(reg, assign); err != nil {
		return nil, err
	}
	if rounds, err = register(reg, rounds); err != nil {
		return nil, err
	}
	if responses, err = register(reg, responses); err != nil {
		return nil, err
	}
	if fleet, err = register(reg, fleet); err != nil {
		return nil, err
	}
	return &PromSink{outcomes: outcomes, assign: assign, rounds: rounds, responses: responses, fleet: fleet}, nil
}

// register returns the already registered collector when c was registered
// by a previous sink.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return c, err
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return c, err
		}
		return existing, nil
	}
	return c, nil
}

// RecordBookingOutcome counts the outcome and observes the assignment delay.
func (s *PromSink) RecordBookingOutcome(ev coremetrics.BookingOutcome) error {
	s.outcomes.WithLabelValues(string(ev.ServiceType), string(ev.Status), string(ev.Reason)).Inc()
	if ev.TimeToAssign > 0 {
		s.assign.WithLabelValues(string(ev.ServiceType)).Observe(ev.TimeToAssign.Seconds())
	}
	return nil
}

// RecordRound counts the round outcome.
func (s *PromSink) RecordRound(ev coremetrics.RoundEvent) error {
	s.rounds.WithLabelValues(ev.Outcome).Inc()
	return nil
}

// RecordOfferResponse counts the response.
func (s *PromSink) RecordOfferResponse(ev coremetrics.OfferResponseEvent) error {
	s.responses.WithLabelValues(ev.Decision, ev.Result).Inc()
	return nil
}

// RecordFleetSize sets the gauge to the number of mechanics online.
func (s *PromSink) RecordFleetSize(size int) error {
	if s.fleet != nil {
		s.fleet.Set(float64(size))
	}
	return nil
}
