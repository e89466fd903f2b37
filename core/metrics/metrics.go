package metrics

import (
	"time"

	"github.com/kilianp07/autoaid/core/model"
)

// BookingOutcome is recorded once per booking when it reaches a terminal state.
type BookingOutcome struct {
	BookingID   string
	ServiceType model.ServiceType
	Urgent      bool
	Status      model.Status
	Reason      model.CancelReason
	MechanicID  string
	Rounds      int
	// TimeToAssign is zero when the booking was never assigned.
	TimeToAssign time.Duration
	Duration     time.Duration
	FinalCost    float64
	Time         time.Time
}

// MetricsSink records booking outcomes for observability purposes.
type MetricsSink interface {
	RecordBookingOutcome(ev BookingOutcome) error
}

// RoundEvent describes one resolved offer round.
type RoundEvent struct {
	BookingID    string
	RoundID      string
	Number       int
	Candidates   int
	RadiusMeters float64
	Outcome      string
	MechanicID   string
	Duration     time.Duration
	Time         time.Time
}

// RoundRecorder records resolved offer rounds.
type RoundRecorder interface {
	RecordRound(ev RoundEvent) error
}

// OfferResponseEvent captures one mechanic response to an offer.
type OfferResponseEvent struct {
	BookingID  string
	RoundID    string
	MechanicID string
	Decision   string
	Result     string
	Latency    time.Duration
	Time       time.Time
}

// OfferRecorder records mechanic responses.
type OfferRecorder interface {
	RecordOfferResponse(ev OfferResponseEvent) error
}

// MechanicStateEvent is a snapshot of a mechanic's availability.
type MechanicStateEvent struct {
	MechanicID string
	Online     bool
	Busy       bool
	Stale      bool
	Time       time.Time
}

// MechanicStateRecorder records mechanic availability changes.
type MechanicStateRecorder interface {
	RecordMechanicState(ev MechanicStateEvent) error
}

// FleetSizeRecorder records the number of mechanics online.
type FleetSizeRecorder interface {
	RecordFleetSize(online int) error
}

// NopSink implements MetricsSink and every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordBookingOutcome(BookingOutcome) error    { return nil }
func (NopSink) RecordRound(RoundEvent) error                 { return nil }
func (NopSink) RecordOfferResponse(OfferResponseEvent) error { return nil }
func (NopSink) RecordMechanicState(MechanicStateEvent) error { return nil }
func (NopSink) RecordFleetSize(int) error                    { return nil }
