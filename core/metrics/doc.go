// Package metrics defines the sinks used to record booking outcomes, offer
// rounds and mechanic responses. Implementations live in infra/metrics and
// are selected by type through the factory registry; several configured
// sinks are combined into a MultiSink.
package metrics
