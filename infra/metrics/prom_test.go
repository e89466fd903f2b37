package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/kilianp07/autoaid/core/metrics"
	"github.com/kilianp07/autoaid/core/model"
)

func TestPromSink_RecordBookingOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink, ok := sinkIf.(*PromSink)
	if !ok {
		t.Fatalf("expected PromSink")
	}
	if err := sink.RecordBookingOutcome(coremetrics.BookingOutcome{
		BookingID:    "b1",
		ServiceType:  model.ServiceFlatTire,
		Status:       model.StatusCancelled,
		Reason:       model.CancelNoMechanic,
		Rounds:       3,
		TimeToAssign: 0,
	}); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP booking_outcomes_total Bookings that reached a terminal state
# TYPE booking_outcomes_total counter
booking_outcomes_total{reason="no_mechanic",service_type="FLAT_TIRE",status="cancelled"} 1
`
	if err := testutil.CollectAndCompare(sink.outcomes, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if c := testutil.CollectAndCount(sink.assign); c != 0 {
		t.Errorf("unassigned booking must not observe time to assign")
	}

	_ = sink.RecordBookingOutcome(coremetrics.BookingOutcome{
		ServiceType: model.ServiceFlatTire, Status: model.StatusCompleted, TimeToAssign: 8 * time.Second,
	})
	if c := testutil.CollectAndCount(sink.assign); c != 1 {
		t.Errorf("time to assign not recorded")
	}

	if err := sink.RecordFleetSize(42); err != nil {
		t.Fatalf("fleet size error: %v", err)
	}
	if v := testutil.ToFloat64(sink.fleet); v != 42 {
		t.Errorf("expected fleet gauge 42 got %v", v)
	}
}

func TestPromSink_RoundsAndResponses(t *testing.T) {
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink := sinkIf.(*PromSink)
	_ = sink.RecordRound(coremetrics.RoundEvent{Outcome: "assigned"})
	_ = sink.RecordRound(coremetrics.RoundEvent{Outcome: "exhausted"})
	_ = sink.RecordRound(coremetrics.RoundEvent{Outcome: "exhausted"})
	_ = sink.RecordOfferResponse(coremetrics.OfferResponseEvent{Decision: "accept", Result: "lost"})

	if v := testutil.ToFloat64(sink.rounds.WithLabelValues("exhausted")); v != 2 {
		t.Errorf("expected 2 exhausted rounds got %v", v)
	}
	if v := testutil.ToFloat64(sink.responses.WithLabelValues("accept", "lost")); v != 1 {
		t.Errorf("expected 1 lost accept got %v", v)
	}
}

func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("first sink: %v", err)
	}
	b, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("second sink: %v", err)
	}
	_ = a.(*PromSink).RecordRound(coremetrics.RoundEvent{Outcome: "cancelled"})
	if v := testutil.ToFloat64(b.(*PromSink).rounds.WithLabelValues("cancelled")); v != 1 {
		t.Errorf("expected shared collector, got %v", v)
	}
}
