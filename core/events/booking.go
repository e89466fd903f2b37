package events

import (
	"time"

	"github.com/kilianp07/autoaid/core/model"
)

// TransitionEvent is published after every committed booking transition.
type TransitionEvent struct {
	BookingID  string
	CustomerID string
	From       model.Status
	To         model.Status
	Event      model.Event
	Actor      model.Actor
	MechanicID string
	Reason     model.CancelReason
	At         time.Time
}
