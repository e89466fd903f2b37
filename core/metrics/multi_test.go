package metrics

import "testing"

type recordSink struct {
	count int
}

func (r *recordSink) RecordBookingOutcome(BookingOutcome) error {
	r.count++
	return nil
}

func (r *recordSink) RecordRound(RoundEvent) error {
	r.count++
	return nil
}

// outcomeOnly implements no optional recorder.
type outcomeOnly struct{ count int }

func (o *outcomeOnly) RecordBookingOutcome(BookingOutcome) error {
	o.count++
	return nil
}

// TestMultiSink ensures events are forwarded to all sinks implementing them.
func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	s3 := &outcomeOnly{}
	m := NewMultiSink(s1, s2, s3)
	if err := m.RecordBookingOutcome(BookingOutcome{BookingID: "b1"}); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if err := m.RecordRound(RoundEvent{BookingID: "b1"}); err != nil {
		t.Fatalf("record round: %v", err)
	}
	if err := m.RecordOfferResponse(OfferResponseEvent{}); err != nil {
		t.Fatalf("record response: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("results not forwarded")
	}
	if s3.count != 1 {
		t.Fatalf("expected outcome only sink to see one event, got %d", s3.count)
	}
}
