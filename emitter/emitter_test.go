package emitter

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/metricflow/wire"
)

// bufferEndpoint collects written frames and satisfies io.WriteCloser.
type bufferEndpoint struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (b *bufferEndpoint) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, errors.New("endpoint closed")
	}
	return b.buf.Write(p)
}

func (b *bufferEndpoint) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *bufferEndpoint) events(t *testing.T) []wire.MetricEvent {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var events []wire.MetricEvent
	for _, frame := range bytes.Split(b.buf.Bytes(), []byte{wire.Terminator}) {
		if len(frame) == 0 {
			continue
		}
		event, err := wire.Decode(frame)
		require.NoError(t, err)
		events = append(events, event)
	}
	return events
}

func TestDescribeEmitsMetadataImmediately(t *testing.T) {
	endpoint := &bufferEndpoint{}
	registry := New(endpoint, nil)

	registry.DescribeCounter("requests", "count", "total requests")
	registry.DescribeGauge("queue_depth", "", "items waiting")
	registry.DescribeHistogram("latency", "seconds", "request latency")

	events := endpoint.events(t)
	require.Len(t, events, 3)
	assert.Equal(t, wire.MetricMetadata{
		Name:        "requests",
		Kind:        wire.KindCounter,
		Description: "total requests",
		Unit:        "count",
	}, *events[0].Metadata)
	assert.Equal(t, wire.KindGauge, events[1].Metadata.Kind)
	assert.Empty(t, events[1].Metadata.Unit)
	assert.Equal(t, wire.KindHistogram, events[2].Metadata.Kind)
}

func TestInstrumentsEmitOperations(t *testing.T) {
	endpoint := &bufferEndpoint{}
	registry := New(endpoint, nil)

	labels := map[string]string{"route": "/a"}
	counter := registry.Counter("requests", labels)
	gauge := registry.Gauge("queue_depth", nil)
	histogram := registry.Histogram("latency", nil)

	counter.Increment(1)
	counter.SetAbsolute(10)
	gauge.Increment(2.5)
	gauge.Decrement(0.5)
	gauge.Set(4)
	histogram.Record(0.25)

	events := endpoint.events(t)
	require.Len(t, events, 6)

	assert.Equal(t, wire.IncrementCounter(1), events[0].Metric.Operation)
	assert.Equal(t, wire.LabelSet{"route": "/a"}, events[0].Metric.Labels)
	assert.Equal(t, wire.SetCounter(10), events[1].Metric.Operation)
	assert.Equal(t, wire.IncrementGauge(2.5), events[2].Metric.Operation)
	assert.Equal(t, wire.DecrementGauge(0.5), events[3].Metric.Operation)
	assert.Equal(t, wire.SetGauge(4), events[4].Metric.Operation)
	assert.Equal(t, wire.RecordHistogram(0.25), events[5].Metric.Operation)
	assert.Equal(t, wire.LabelSet{}, events[5].Metric.Labels)
}

func TestInstrumentLabelsAreImmutable(t *testing.T) {
	endpoint := &bufferEndpoint{}
	registry := New(endpoint, nil)

	labels := map[string]string{"route": "/a"}
	counter := registry.Counter("requests", labels)

	// Mutating the caller's map after registration must not leak into the
	// instrument's identity.
	labels["route"] = "/changed"
	counter.Increment(1)

	events := endpoint.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, wire.LabelSet{"route": "/a"}, events[0].Metric.Labels)
}

func TestWriteFailuresAreSwallowedAndCounted(t *testing.T) {
	endpoint := &bufferEndpoint{}
	registry := New(endpoint, nil)
	counter := registry.Counter("requests", nil)

	counter.Increment(1)
	require.NoError(t, registry.Close())

	// The producer path must not panic, error, or block.
	counter.Increment(2)
	counter.Increment(3)
	registry.DescribeCounter("requests", "", "after close")

	assert.Equal(t, uint64(3), registry.Dropped())
	require.Len(t, endpoint.events(t), 1)
}

func TestConcurrentWritersNeverInterleaveFrames(t *testing.T) {
	endpoint := &bufferEndpoint{}
	registry := New(endpoint, nil)

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		counter := registry.Counter("requests", map[string]string{"writer": string(rune('a' + i))})
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				counter.Increment(1)
			}
		}()
	}
	wg.Wait()

	// Every frame must decode cleanly: a single torn or interleaved write
	// would corrupt at least one.
	events := endpoint.events(t)
	assert.Len(t, events, writers*perWriter)
	assert.Zero(t, registry.Dropped())
}

func TestNewSocketSurfacesConnectError(t *testing.T) {
	_, err := NewSocket(Config{SocketName: "metricflow-test-no-collector.sock"})
	require.Error(t, err)
}

func TestNewPipeRequiresSender(t *testing.T) {
	_, err := NewPipe(nil, nil)
	require.Error(t, err)
}
