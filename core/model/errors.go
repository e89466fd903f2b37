package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a mechanic, booking or customer is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for illegal booking state changes.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNoCandidates is returned when an offer round is started without candidates.
	ErrNoCandidates = errors.New("no candidates")
	// ErrNoMechanicAvailable is returned once the search ladder is exhausted.
	ErrNoMechanicAvailable = errors.New("no mechanic available")
	// ErrAlreadyAssigned is returned to the losers of an acceptance race.
	ErrAlreadyAssigned = errors.New("booking already assigned")
	// ErrStaleOffer is returned for responses to an expired or superseded round.
	ErrStaleOffer = errors.New("stale offer")
	// ErrMechanicBusy is returned when a mechanic already holds another booking.
	ErrMechanicBusy = errors.New("mechanic busy")
	// ErrInvalidRequest flags malformed input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized is returned when the caller identity cannot be verified.
	ErrUnauthorized = errors.New("unauthorized")
)

// TransitionError describes a rejected state machine move.
type TransitionError struct {
	Current   Status
	Attempted Status
	Event     Event
	Reason    string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition %s: %s -> %s", e.Event, e.Current, e.Attempted)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// Is makes errors.Is(err, ErrInvalidTransition) hold for every TransitionError.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
