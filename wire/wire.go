// Package wire defines the metric event model and its line-framed JSON
// encoding. Every frame on the wire carries exactly one MetricEvent followed
// by a single '\n' terminator; decoding a frame never requires state from
// other frames.
package wire

import (
	"sort"
)

// MetricKind distinguishes counters, gauges, and histograms. The kind of a
// metric name is set once and never changes.
type MetricKind string

const (
	KindCounter   MetricKind = "Counter"
	KindGauge     MetricKind = "Gauge"
	KindHistogram MetricKind = "Histogram"
)

// Valid reports whether k is one of the three known kinds.
func (k MetricKind) Valid() bool {
	switch k {
	case KindCounter, KindGauge, KindHistogram:
		return true
	}
	return false
}

// MetricMetadata describes a metric once: name, kind, human description and
// an optional unit. Re-sending metadata for the same name is idempotent
// downstream (last write wins).
type MetricMetadata struct {
	Name        string
	Kind        MetricKind
	Description string
	// Unit is empty when no unit applies. Only the recognized unit names
	// survive the facade bridge; anything else is treated as absent there.
	Unit string
}

// LabelSet maps label keys to values. Two label sets with the same pairs are
// equal regardless of construction order; the canonical form (and the
// encoded form) is sorted by key.
type LabelSet map[string]string

// SortedKeys returns the label keys in canonical order.
func (ls LabelSet) SortedKeys() []string {
	if len(ls) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ls))
	for key := range ls {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both sets contain exactly the same pairs.
func (ls LabelSet) Equal(other LabelSet) bool {
	if len(ls) != len(other) {
		return false
	}
	for key, value := range ls {
		if ov, ok := other[key]; !ok || ov != value {
			return false
		}
	}
	return true
}

// Op enumerates the operation variants carried by a MetricData.
type Op uint8

const (
	OpIncrementCounter Op = iota
	OpSetCounter
	OpIncrementGauge
	OpDecrementGauge
	OpSetGauge
	OpRecordHistogram
)

var opNames = map[Op]string{
	OpIncrementCounter: "increment_counter",
	OpSetCounter:       "set_counter",
	OpIncrementGauge:   "increment_gauge",
	OpDecrementGauge:   "decrement_gauge",
	OpSetGauge:         "set_gauge",
	OpRecordHistogram:  "record_histogram",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "unknown"
}

// IsCounter reports whether the operation carries an unsigned counter value.
func (o Op) IsCounter() bool {
	return o == OpIncrementCounter || o == OpSetCounter
}

// MetricOperation is the tagged operation variant. Counter operations carry
// CounterValue (unsigned, counters are monotonic); gauge and histogram
// operations carry SampleValue. The unused payload field is always zero, so
// values compare with ==.
type MetricOperation struct {
	Op           Op
	CounterValue uint64
	SampleValue  float64
}

// IncrementCounter adds delta to a counter.
func IncrementCounter(delta uint64) MetricOperation {
	return MetricOperation{Op: OpIncrementCounter, CounterValue: delta}
}

// SetCounter sets a counter to an absolute value.
func SetCounter(value uint64) MetricOperation {
	return MetricOperation{Op: OpSetCounter, CounterValue: value}
}

// IncrementGauge adds delta to a gauge.
func IncrementGauge(delta float64) MetricOperation {
	return MetricOperation{Op: OpIncrementGauge, SampleValue: delta}
}

// DecrementGauge subtracts delta from a gauge.
func DecrementGauge(delta float64) MetricOperation {
	return MetricOperation{Op: OpDecrementGauge, SampleValue: delta}
}

// SetGauge sets a gauge to value.
func SetGauge(value float64) MetricOperation {
	return MetricOperation{Op: OpSetGauge, SampleValue: value}
}

// RecordHistogram records one histogram sample.
func RecordHistogram(sample float64) MetricOperation {
	return MetricOperation{Op: OpRecordHistogram, SampleValue: sample}
}

// MetricData is one discrete measurement event, immutable once constructed.
type MetricData struct {
	Name      string
	Labels    LabelSet
	Operation MetricOperation
}

// MetricEvent is the unit of transport: exactly one of Metadata or Metric is
// non-nil.
type MetricEvent struct {
	Metadata *MetricMetadata
	Metric   *MetricData
}

// MetadataEvent wraps metadata into a transportable event.
func MetadataEvent(md MetricMetadata) MetricEvent {
	return MetricEvent{Metadata: &md}
}

// MetricDataEvent wraps a measurement into a transportable event.
func MetricDataEvent(data MetricData) MetricEvent {
	return MetricEvent{Metric: &data}
}
