// Package emitter implements the producer side of metricflow: a Registry
// satisfies the facade.Recorder surface and turns every describe and
// instrument update into one encoded frame on a shared transport endpoint.
//
// All instruments created from one Registry write through one endpoint under
// a mutex, so frames from concurrent instruments are never interleaved at
// the byte level. Update-path write failures never reach the caller: the
// producer must not crash or stall because the collector is unreachable.
// They are counted (Dropped) and logged at debug for diagnosis.
package emitter

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/drblury/metricflow/facade"
	"github.com/drblury/metricflow/logging"
	"github.com/drblury/metricflow/transport"
	"github.com/drblury/metricflow/transport/socket"
	"github.com/drblury/metricflow/wire"
)

// Config configures a socket-backed Registry.
type Config struct {
	// SocketName overrides the collector socket name. Defaults to
	// socket.DefaultName.
	SocketName string

	// Filesystem forces a filesystem-backed socket address.
	Filesystem bool

	// Logger receives diagnostics for dropped writes. Defaults to a nop
	// logger.
	Logger logging.Logger
}

// Registry emits metric events over one shared endpoint. It implements
// facade.Recorder; every instrument it hands out is bound to the same
// endpoint and owns no transport resources of its own.
type Registry struct {
	mu       sync.Mutex
	endpoint io.WriteCloser
	logger   logging.Logger
	dropped  atomic.Uint64
}

// NewSocket connects to the named collector socket and returns a Registry
// bound to that connection. The connect error is surfaced synchronously;
// each NewSocket call opens its own connection, so several registries in one
// process are fine.
func NewSocket(cfg Config) (*Registry, error) {
	conn, err := socket.Dial(socket.Options{Name: cfg.SocketName, Filesystem: cfg.Filesystem})
	if err != nil {
		return nil, err
	}
	return New(conn, cfg.Logger), nil
}

// NewPipe returns a Registry bound to an imported pipe send end.
func NewPipe(sender transport.Sender, logger logging.Logger) (*Registry, error) {
	if sender == nil {
		return nil, errors.New("metricflow: pipe sender is required")
	}
	return New(sender, logger), nil
}

// New returns a Registry over an already-connected endpoint.
func New(endpoint io.WriteCloser, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Registry{endpoint: endpoint, logger: logger}
}

// Dropped reports how many events were discarded because the endpoint
// rejected the write.
func (r *Registry) Dropped() uint64 {
	return r.dropped.Load()
}

// Close closes the shared endpoint. Instruments created from this Registry
// drop all further updates.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endpoint.Close()
}

// DescribeCounter emits counter metadata immediately.
func (r *Registry) DescribeCounter(name string, unit facade.Unit, description string) {
	r.describe(name, wire.KindCounter, unit, description)
}

// DescribeGauge emits gauge metadata immediately.
func (r *Registry) DescribeGauge(name string, unit facade.Unit, description string) {
	r.describe(name, wire.KindGauge, unit, description)
}

// DescribeHistogram emits histogram metadata immediately.
func (r *Registry) DescribeHistogram(name string, unit facade.Unit, description string) {
	r.describe(name, wire.KindHistogram, unit, description)
}

// Counter returns a counter instrument for the name/label pair.
func (r *Registry) Counter(name string, labels map[string]string) facade.Counter {
	return counterHandle{r.handle(name, labels)}
}

// Gauge returns a gauge instrument for the name/label pair.
func (r *Registry) Gauge(name string, labels map[string]string) facade.Gauge {
	return gaugeHandle{r.handle(name, labels)}
}

// Histogram returns a histogram instrument for the name/label pair.
func (r *Registry) Histogram(name string, labels map[string]string) facade.Histogram {
	return histogramHandle{r.handle(name, labels)}
}

func (r *Registry) describe(name string, kind wire.MetricKind, unit facade.Unit, description string) {
	r.writeEvent(wire.MetadataEvent(wire.MetricMetadata{
		Name:        name,
		Kind:        kind,
		Description: description,
		Unit:        unit.String(),
	}))
}

func (r *Registry) handle(name string, labels map[string]string) *handle {
	bound := make(wire.LabelSet, len(labels))
	for key, value := range labels {
		bound[key] = value
	}
	return &handle{registry: r, name: name, labels: bound}
}

// writeEvent frames and writes one event. The whole frame goes out in a
// single Write call under the endpoint mutex.
func (r *Registry) writeEvent(event wire.MetricEvent) {
	frame, err := wire.EncodeFrame(event)
	if err != nil {
		r.dropped.Add(1)
		r.logger.Debug("dropping unencodable metric event", logging.Fields{"error": err.Error()})
		return
	}

	r.mu.Lock()
	_, err = r.endpoint.Write(frame)
	r.mu.Unlock()

	if err != nil {
		r.dropped.Add(1)
		r.logger.Debug("dropping metric event after write failure", logging.Fields{"error": err.Error()})
	}
}

// handle binds one metric's name/label identity to the registry's endpoint.
// The per-kind instrument types below share it; a handle owns no transport
// resources of its own.
type handle struct {
	registry *Registry
	name     string
	labels   wire.LabelSet
}

func (h *handle) push(op wire.MetricOperation) {
	h.registry.writeEvent(wire.MetricDataEvent(wire.MetricData{
		Name:      h.name,
		Labels:    h.labels,
		Operation: op,
	}))
}

type counterHandle struct{ *handle }

func (h counterHandle) Increment(delta uint64)   { h.push(wire.IncrementCounter(delta)) }
func (h counterHandle) SetAbsolute(value uint64) { h.push(wire.SetCounter(value)) }

type gaugeHandle struct{ *handle }

func (h gaugeHandle) Increment(delta float64) { h.push(wire.IncrementGauge(delta)) }
func (h gaugeHandle) Decrement(delta float64) { h.push(wire.DecrementGauge(delta)) }
func (h gaugeHandle) Set(value float64)       { h.push(wire.SetGauge(value)) }

type histogramHandle struct{ *handle }

func (h histogramHandle) Record(sample float64) { h.push(wire.RecordHistogram(sample)) }
