// Package facade defines the downstream metrics boundary: the
// registration/update surface a metrics backend must provide so decoded
// events can be applied to it. Implementations for Prometheus,
// OpenTelemetry, and Watermill message buses live in sub-packages.
package facade

import (
	"errors"
	"sync"
)

// Counter is a monotonic counter instrument.
type Counter interface {
	// Increment adds delta to the counter.
	Increment(delta uint64)

	// SetAbsolute sets the counter to an absolute value. Backends that
	// cannot set counters directly emulate this with a delta.
	SetAbsolute(value uint64)
}

// Gauge is a point-in-time value instrument.
type Gauge interface {
	Increment(delta float64)
	Decrement(delta float64)
	Set(value float64)
}

// Histogram records a distribution of samples.
type Histogram interface {
	Record(sample float64)
}

// Recorder is the instrument registration and description surface of a
// metrics backend. Implementations must be safe for concurrent use.
//
// A nil or empty label map selects the plain (unlabeled) series; an
// implementation must not synthesize a labeled series for it.
type Recorder interface {
	DescribeCounter(name string, unit Unit, description string)
	DescribeGauge(name string, unit Unit, description string)
	DescribeHistogram(name string, unit Unit, description string)

	Counter(name string, labels map[string]string) Counter
	Gauge(name string, labels map[string]string) Gauge
	Histogram(name string, labels map[string]string) Histogram
}

// ErrRecorderInstalled reports a second attempt to install the process-wide
// recorder.
var ErrRecorderInstalled = errors.New("metricflow: a recorder is already installed")

var (
	globalMu       sync.Mutex
	globalRecorder Recorder
)

// Install registers r as the process-wide recorder. It succeeds at most once
// per process; later calls fail with ErrRecorderInstalled.
func Install(r Recorder) error {
	if r == nil {
		return errors.New("metricflow: cannot install a nil recorder")
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRecorder != nil {
		return ErrRecorderInstalled
	}
	globalRecorder = r
	return nil
}

// Installed returns the process-wide recorder, or nil when none is
// installed.
func Installed() Recorder {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalRecorder
}
