// Package eventbus fans domain events out to in-process subscribers such as
// the metrics collector. Publishers never block: a subscriber that falls
// behind loses events and the bus counts them.
package eventbus

// Event is any value published on the bus.
type Event any

// EventBus is the publishing side used by the core packages.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus carries untyped events.
type Bus struct {
	*TypedBus[Event]
}

// New creates a Bus with DefaultBuffer slots per subscriber.
func New() *Bus { return &Bus{NewTyped[Event](DefaultBuffer)} }
