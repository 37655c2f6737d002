// Package streamfacade implements the facade.Recorder surface on top of a
// Watermill publisher: every describe and instrument update is re-encoded as
// a wire event and published to one topic, so embedding applications can fan
// collected metrics into their message bus. The recorder performs no
// aggregation.
package streamfacade

import (
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/metricflow/facade"
	"github.com/drblury/metricflow/logging"
	"github.com/drblury/metricflow/wire"
)

// DefaultTopic receives the republished events when no topic is configured.
const DefaultTopic = "metricflow.events"

// Config configures the stream recorder.
type Config struct {
	// Publisher receives one message per metric event. Required.
	Publisher message.Publisher

	// Topic overrides DefaultTopic.
	Topic string

	// Logger receives diagnostics for dropped publishes. Defaults to a nop
	// logger.
	Logger logging.Logger
}

// Recorder republishes metric events to a message bus.
type Recorder struct {
	publisher message.Publisher
	topic     string
	logger    logging.Logger
	dropped   atomic.Uint64
}

// New creates a stream-backed recorder.
func New(cfg Config) *Recorder {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Recorder{publisher: cfg.Publisher, topic: topic, logger: logger}
}

// Dropped reports how many events could not be published.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// DescribeCounter republishes counter metadata.
func (r *Recorder) DescribeCounter(name string, unit facade.Unit, description string) {
	r.describe(name, wire.KindCounter, unit, description)
}

// DescribeGauge republishes gauge metadata.
func (r *Recorder) DescribeGauge(name string, unit facade.Unit, description string) {
	r.describe(name, wire.KindGauge, unit, description)
}

// DescribeHistogram republishes histogram metadata.
func (r *Recorder) DescribeHistogram(name string, unit facade.Unit, description string) {
	r.describe(name, wire.KindHistogram, unit, description)
}

func (r *Recorder) describe(name string, kind wire.MetricKind, unit facade.Unit, description string) {
	r.publish(wire.MetadataEvent(wire.MetricMetadata{
		Name:        name,
		Kind:        kind,
		Description: description,
		Unit:        unit.String(),
	}))
}

// Counter returns a counter that republishes its updates.
func (r *Recorder) Counter(name string, labels map[string]string) facade.Counter {
	return counterStream{r.handle(name, labels)}
}

// Gauge returns a gauge that republishes its updates.
func (r *Recorder) Gauge(name string, labels map[string]string) facade.Gauge {
	return gaugeStream{r.handle(name, labels)}
}

// Histogram returns a histogram that republishes its samples.
func (r *Recorder) Histogram(name string, labels map[string]string) facade.Histogram {
	return histogramStream{r.handle(name, labels)}
}

func (r *Recorder) handle(name string, labels map[string]string) *handle {
	bound := make(wire.LabelSet, len(labels))
	for key, value := range labels {
		bound[key] = value
	}
	return &handle{recorder: r, name: name, labels: bound}
}

func (r *Recorder) publish(event wire.MetricEvent) {
	payload, err := wire.Encode(event)
	if err != nil {
		r.dropped.Add(1)
		r.logger.Debug("dropping unencodable metric event", logging.Fields{"error": err.Error()})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := r.publisher.Publish(r.topic, msg); err != nil {
		r.dropped.Add(1)
		r.logger.Debug("dropping metric event after publish failure", logging.Fields{"error": err.Error()})
	}
}

type handle struct {
	recorder *Recorder
	name     string
	labels   wire.LabelSet
}

func (h *handle) push(op wire.MetricOperation) {
	h.recorder.publish(wire.MetricDataEvent(wire.MetricData{
		Name:      h.name,
		Labels:    h.labels,
		Operation: op,
	}))
}

type counterStream struct{ *handle }

func (s counterStream) Increment(delta uint64)   { s.push(wire.IncrementCounter(delta)) }
func (s counterStream) SetAbsolute(value uint64) { s.push(wire.SetCounter(value)) }

type gaugeStream struct{ *handle }

func (s gaugeStream) Increment(delta float64) { s.push(wire.IncrementGauge(delta)) }
func (s gaugeStream) Decrement(delta float64) { s.push(wire.DecrementGauge(delta)) }
func (s gaugeStream) Set(value float64)       { s.push(wire.SetGauge(value)) }

type histogramStream struct{ *handle }

func (s histogramStream) Record(sample float64) { s.push(wire.RecordHistogram(sample)) }
