package mqtt

import "errors"

// ErrTopic is returned for topics outside the mechanic/{id}/... layout.
var ErrTopic = errors.New("unexpected topic")

// ErrIdentityMismatch is returned when a payload names another mechanic than
// its topic.
var ErrIdentityMismatch = errors.New("payload mechanic does not match topic")
