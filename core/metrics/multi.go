package metrics

// MultiSink fans events out to multiple sinks. Optional recorder calls are
// forwarded only to the sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordBookingOutcome forwards the outcome to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordBookingOutcome(ev BookingOutcome) error {
	for _, s := range m.Sinks {
		if err := s.RecordBookingOutcome(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordRound forwards round events.
func (m *MultiSink) RecordRound(ev RoundEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RoundRecorder); ok {
			if err := rec.RecordRound(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordOfferResponse forwards offer responses.
func (m *MultiSink) RecordOfferResponse(ev OfferResponseEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(OfferRecorder); ok {
			if err := rec.RecordOfferResponse(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordMechanicState forwards mechanic snapshots.
func (m *MultiSink) RecordMechanicState(ev MechanicStateEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(MechanicStateRecorder); ok {
			if err := rec.RecordMechanicState(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFleetSize forwards the online mechanic count.
func (m *MultiSink) RecordFleetSize(online int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(FleetSizeRecorder); ok {
			if err := rec.RecordFleetSize(online); err != nil {
				return err
			}
		}
	}
	return nil
}
