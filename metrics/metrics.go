// Package metrics defines the instrumentation contract for the payment
// handshake.
package metrics

import "time"

// Recorder counts handshake events and observes operation latency.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
