package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSearching  Status = "searching"
	StatusAssigned   Status = "assigned"
	StatusEnRoute    Status = "en_route"
	StatusArrived    Status = "arrived"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Engaged reports whether a mechanic is attached to a booking in state s.
func (s Status) Engaged() bool {
	switch s {
	case StatusAssigned, StatusEnRoute, StatusArrived, StatusInProgress:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Event names a state machine input.
type Event string

const (
	EventCreated          Event = "created"
	EventStartSearch      Event = "start_search"
	EventRoundStarted     Event = "round_started"
	EventOfferAccepted    Event = "offer_accepted"
	EventRoundExhausted   Event = "round_exhausted"
	EventMechanicDeparted Event = "mechanic_departed"
	EventMechanicArrived  Event = "mechanic_arrived"
	EventWorkStarted      Event = "work_started"
	EventWorkFinished     Event = "work_finished"
	EventCancel           Event = "cancel"
)

// ParseProgressEvent maps a mechanic progress event name to an Event.
func ParseProgressEvent(s string) (Event, error) {
	switch e := Event(s); e {
	case EventMechanicDeparted, EventMechanicArrived, EventWorkStarted, EventWorkFinished:
		return e, nil
	}
	return "", fmt.Errorf("%w: unknown progress event %q", ErrInvalidRequest, s)
}

func (e Event) String() string { return string(e) }

// Role scopes the operations an actor may perform on a booking.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleMechanic Role = "mechanic"
	RoleSystem   Role = "system"
)

// Actor identifies who requested a transition.
type Actor struct {
	Role Role   `json:"role"`
	ID   string `json:"id,omitempty"`
}

// SystemActor is used for transitions driven by timeouts and the coordinator.
var SystemActor = Actor{Role: RoleSystem}

func (a Actor) String() string {
	if a.ID == "" {
		return string(a.Role)
	}
	return string(a.Role) + ":" + a.ID
}

// CancelReason records why a booking was cancelled.
type CancelReason string

const (
	CancelCustomer     CancelReason = "customer"
	CancelMechanic     CancelReason = "mechanic"
	CancelNoMechanic   CancelReason = "no_mechanic"
	CancelMechanicLost CancelReason = "mechanic_lost"
	CancelTimeout      CancelReason = "timeout"
)

// ParseCancelReason validates a reason received from a client.
func ParseCancelReason(s string) (CancelReason, error) {
	switch r := CancelReason(s); r {
	case CancelCustomer, CancelMechanic, CancelNoMechanic, CancelMechanicLost, CancelTimeout:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown cancel reason %q", ErrInvalidRequest, s)
}

// RoundInfo is the offer round metadata kept on the booking.
type RoundInfo struct {
	ID         string    `json:"id"`
	Number     int       `json:"number"`
	Candidates []string  `json:"candidates"`
	Deadline   time.Time `json:"deadline"`
}

// Transition is one entry of the booking audit history.
type Transition struct {
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Event      Event     `json:"event"`
	Actor      Actor     `json:"actor"`
	MechanicID string    `json:"mechanic_id,omitempty"`
	RoundID    string    `json:"round_id,omitempty"`
	At         time.Time `json:"at"`
}

// Booking is one customer request and its lifecycle record.
type Booking struct {
	ID           string       `json:"id"`
	CustomerID   string       `json:"customer_id"`
	ServiceType  ServiceType  `json:"service_type"`
	Pickup       Position     `json:"pickup"`
	Urgent       bool         `json:"is_urgent"`
	Status       Status       `json:"status"`
	MechanicID   string       `json:"mechanic_id,omitempty"`
	Round        *RoundInfo   `json:"round,omitempty"`
	Rounds       int          `json:"rounds"`
	FinalCost    *float64     `json:"final_cost,omitempty"`
	CancelReason CancelReason `json:"cancel_reason,omitempty"`
	CancelledBy  *Actor       `json:"cancelled_by,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	AssignedAt   *time.Time   `json:"assigned_at,omitempty"`
	ClosedAt     *time.Time   `json:"closed_at,omitempty"`
	History      []Transition `json:"history"`
}

// Clone returns a deep copy of b.
func (b Booking) Clone() Booking {
	if b.Round != nil {
		r := *b.Round
		r.Candidates = append([]string(nil), b.Round.Candidates...)
		b.Round = &r
	}
	if b.FinalCost != nil {
		c := *b.FinalCost
		b.FinalCost = &c
	}
	if b.CancelledBy != nil {
		a := *b.CancelledBy
		b.CancelledBy = &a
	}
	if b.AssignedAt != nil {
		t := *b.AssignedAt
		b.AssignedAt = &t
	}
	if b.ClosedAt != nil {
		t := *b.ClosedAt
		b.ClosedAt = &t
	}
	b.History = append([]Transition(nil), b.History...)
	return b
}

// BookingRequest is the inbound create-booking payload.
type BookingRequest struct {
	CustomerID  string      `json:"customerId"`
	ServiceType ServiceType `json:"serviceType"`
	Location    *Position   `json:"location"`
	Urgent      bool        `json:"isUrgent"`
}

// Validate checks the request fields and normalises the service type.
func (r *BookingRequest) Validate() error {
	if r.CustomerID == "" {
		return fmt.Errorf("%w: customerId is required", ErrInvalidRequest)
	}
	if r.Location == nil {
		return fmt.Errorf("%w: location is required", ErrInvalidRequest)
	}
	if err := r.Location.Validate(); err != nil {
		return err
	}
	st, err := ParseServiceType(string(r.ServiceType))
	if err != nil {
		return err
	}
	r.ServiceType = st
	if st.IsSOS() {
		r.Urgent = true
	}
	return nil
}
