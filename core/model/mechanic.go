package model

import (
	"fmt"
	"time"
)

// Mechanic is the availability record of one field technician.
type Mechanic struct {
	ID           string       `json:"id"`
	Online       bool         `json:"online"`
	Position     Position     `json:"position"`
	Capabilities Capabilities `json:"capabilities"`
	// Busy is true while the mechanic is assigned to a non-terminal booking.
	Busy      bool    `json:"busy"`
	BookingID string  `json:"booking_id,omitempty"`
	Rating    float64 `json:"rating"`
	TotalJobs int     `json:"total_jobs"`
	// LastSeen is the timestamp of the most recent accepted heartbeat.
	LastSeen time.Time `json:"last_seen"`
	Stale    bool      `json:"stale,omitempty"`
}

// Available reports whether the mechanic may receive new offers.
func (m Mechanic) Available() bool {
	return m.Online && !m.Busy && !m.Stale
}

// Clone returns a copy that shares no mutable state with m.
func (m Mechanic) Clone() Mechanic {
	m.Capabilities = m.Capabilities.Clone()
	return m
}

// Candidate is a mechanic selected for an offer round.
type Candidate struct {
	MechanicID     string  `json:"mechanic_id"`
	Rank           int     `json:"rank"`
	DistanceMeters float64 `json:"distance_meters"`
	Rating         float64 `json:"rating"`
}

// Heartbeat is the periodic presence report sent by a mechanic client.
type Heartbeat struct {
	MechanicID   string       `json:"mechanicId"`
	Lat          float64      `json:"lat"`
	Lng          float64      `json:"lng"`
	Online       bool         `json:"online"`
	Capabilities Capabilities `json:"capabilities,omitempty"`
	// At is the client timestamp. The receive time is used when zero.
	At time.Time `json:"at,omitempty"`
}

// Position returns the reported coordinate.
func (h Heartbeat) Position() Position { return Position{Lat: h.Lat, Lng: h.Lng} }

// Validate checks the mandatory heartbeat fields.
func (h Heartbeat) Validate() error {
	if h.MechanicID == "" {
		return fmt.Errorf("%w: mechanicId is required", ErrInvalidRequest)
	}
	if !h.Online {
		return nil
	}
	return h.Position().Validate()
}
