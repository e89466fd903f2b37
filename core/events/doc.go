// Package events defines the booking lifecycle events emitted on the event bus.
//
// Available event types:
//   - TransitionEvent: a booking changed state
//   - RoundEvent: an offer round started or resolved
//   - OfferResponseEvent: a mechanic answered an offer
//   - MechanicEvent: a mechanic went online, offline or stale
package events
