// Package metricflow carries counters, gauges, and histograms from many
// independent processes to a single collecting process over local IPC
// channels, without shared memory. Producers create an emitter.Registry
// bound to a transport endpoint; every instrument update becomes one
// newline-framed JSON event on the wire. The collector accepts connections,
// decodes frames, and applies each event to a pluggable metrics facade
// (Prometheus, OpenTelemetry, or a Watermill message bus out of the box).
//
// # Transports
//
// Two transports ship with the module:
//   - socket: a named local socket; any number of producers connect to one
//     well-known name. On Linux it lives in the abstract namespace with no
//     filesystem footprint; elsewhere it is backed by a temp-directory path
//     that is cleaned up on both ends of the listener lifecycle.
//   - pipe: an anonymous point-to-point pipe whose send end is moved, once,
//     to exactly one child process via a raw transferable handle.
//
// # Failure policy
//
// Producers never crash or block because the collector is unreachable:
// update-path write failures are swallowed, counted, and logged at debug.
// The collector never aborts a healthy connection: malformed frames are
// counted and dropped, read errors terminate only the affected connection,
// and accept errors are logged and skipped.
//
// A minimal setup is a Collector with a facade recorder on one side and an
// emitter.Registry dialing the same socket name on the other; see the
// examples directory for runnable listener, sender, and pipe-handoff demos.
package metricflow
