package events

import "time"

// Round phases.
const (
	RoundStarted  = "started"
	RoundResolved = "resolved"
)

// RoundEvent is emitted when an offer round starts and when it resolves.
// Outcome is empty for started rounds. RadiusMeters is the search radius the
// candidates were drawn from.
type RoundEvent struct {
	BookingID    string
	RoundID      string
	Number       int
	Phase        string
	Candidates   int
	RadiusMeters float64
	Outcome      string
	MechanicID   string
	Duration     time.Duration
}

// OfferResponseEvent is emitted for every mechanic response to an offer.
// Result is one of "won", "lost", "declined", "stale" or "rejected".
type OfferResponseEvent struct {
	BookingID  string
	RoundID    string
	MechanicID string
	Decision   string
	Result     string
	Latency    time.Duration
}
