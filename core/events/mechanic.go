package events

// MechanicEvent reports presence changes of a mechanic.
type MechanicEvent struct {
	MechanicID string
	Online     bool
	Stale      bool
	BookingID  string
}
