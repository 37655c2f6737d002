package collector

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/metricflow/emitter"
	"github.com/drblury/metricflow/facade"
	"github.com/drblury/metricflow/transport/socket"
	"github.com/drblury/metricflow/wire"
)

// capturedOp is one recorder call as seen by the capture recorder.
type capturedOp struct {
	op     wire.Op
	name   string
	labels map[string]string
	uval   uint64
	fval   float64
}

type capturedDescription struct {
	kind        wire.MetricKind
	name        string
	unit        facade.Unit
	description string
}

// captureRecorder implements facade.Recorder and records every call in
// arrival order.
type captureRecorder struct {
	mu           sync.Mutex
	ops          []capturedOp
	descriptions []capturedDescription
}

func (r *captureRecorder) DescribeCounter(name string, unit facade.Unit, description string) {
	r.describe(wire.KindCounter, name, unit, description)
}

func (r *captureRecorder) DescribeGauge(name string, unit facade.Unit, description string) {
	r.describe(wire.KindGauge, name, unit, description)
}

func (r *captureRecorder) DescribeHistogram(name string, unit facade.Unit, description string) {
	r.describe(wire.KindHistogram, name, unit, description)
}

func (r *captureRecorder) Counter(name string, labels map[string]string) facade.Counter {
	return captureCounter{recorder: r, name: name, labels: labels}
}

func (r *captureRecorder) Gauge(name string, labels map[string]string) facade.Gauge {
	return captureGauge{recorder: r, name: name, labels: labels}
}

func (r *captureRecorder) Histogram(name string, labels map[string]string) facade.Histogram {
	return captureHistogram{recorder: r, name: name, labels: labels}
}

func (r *captureRecorder) describe(kind wire.MetricKind, name string, unit facade.Unit, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptions = append(r.descriptions, capturedDescription{
		kind:        kind,
		name:        name,
		unit:        unit,
		description: description,
	})
}

func (r *captureRecorder) record(op capturedOp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *captureRecorder) snapshot() []capturedOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedOp(nil), r.ops...)
}

func (r *captureRecorder) opCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

type captureCounter struct {
	recorder *captureRecorder
	name     string
	labels   map[string]string
}

func (c captureCounter) Increment(delta uint64) {
	c.recorder.record(capturedOp{op: wire.OpIncrementCounter, name: c.name, labels: c.labels, uval: delta})
}

func (c captureCounter) SetAbsolute(value uint64) {
	c.recorder.record(capturedOp{op: wire.OpSetCounter, name: c.name, labels: c.labels, uval: value})
}

type captureGauge struct {
	recorder *captureRecorder
	name     string
	labels   map[string]string
}

func (g captureGauge) Increment(delta float64) {
	g.recorder.record(capturedOp{op: wire.OpIncrementGauge, name: g.name, labels: g.labels, fval: delta})
}

func (g captureGauge) Decrement(delta float64) {
	g.recorder.record(capturedOp{op: wire.OpDecrementGauge, name: g.name, labels: g.labels, fval: delta})
}

func (g captureGauge) Set(value float64) {
	g.recorder.record(capturedOp{op: wire.OpSetGauge, name: g.name, labels: g.labels, fval: value})
}

type captureHistogram struct {
	recorder *captureRecorder
	name     string
	labels   map[string]string
}

func (h captureHistogram) Record(sample float64) {
	h.recorder.record(capturedOp{op: wire.OpRecordHistogram, name: h.name, labels: h.labels, fval: sample})
}

func waitForOps(t *testing.T, recorder *captureRecorder, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return recorder.opCount() >= want
	}, 5*time.Second, 5*time.Millisecond)
}

func TestNewRequiresRecorder(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNewRejectsUnknownTransport(t *testing.T) {
	_, err := New(Config{Transport: "carrier-pigeon", Recorder: &captureRecorder{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestSocketEndToEndOrdering(t *testing.T) {
	recorder := &captureRecorder{}
	c, err := New(Config{
		SocketName: "metricflow-test-ordering.sock",
		Recorder:   recorder,
	})
	require.NoError(t, err)
	stop := c.Start(context.Background())
	defer stop()

	registry, err := emitter.NewSocket(emitter.Config{SocketName: "metricflow-test-ordering.sock"})
	require.NoError(t, err)
	defer registry.Close()

	registry.DescribeCounter("requests", facade.UnitCount, "total requests")
	counter := registry.Counter("requests", map[string]string{"route": "/a"})
	counter.Increment(1)
	counter.Increment(1)
	counter.Increment(3)

	waitForOps(t, recorder, 3)

	ops := recorder.snapshot()
	require.Len(t, ops, 3)
	for i, want := range []uint64{1, 1, 3} {
		assert.Equal(t, wire.OpIncrementCounter, ops[i].op)
		assert.Equal(t, "requests", ops[i].name)
		assert.Equal(t, map[string]string{"route": "/a"}, ops[i].labels)
		assert.Equal(t, want, ops[i].uval)
	}

	recorder.mu.Lock()
	descriptions := append([]capturedDescription(nil), recorder.descriptions...)
	recorder.mu.Unlock()
	require.Len(t, descriptions, 1)
	assert.Equal(t, capturedDescription{
		kind:        wire.KindCounter,
		name:        "requests",
		unit:        facade.UnitCount,
		description: "total requests",
	}, descriptions[0])

	require.NoError(t, stop())
	assert.Zero(t, c.Malformed())
}

func TestManyProducersStayIsolated(t *testing.T) {
	const producers = 5
	const perProducer = 20

	recorder := &captureRecorder{}
	c, err := New(Config{
		SocketName: "metricflow-test-producers.sock",
		Recorder:   recorder,
	})
	require.NoError(t, err)
	stop := c.Start(context.Background())
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			registry, err := emitter.NewSocket(emitter.Config{SocketName: "metricflow-test-producers.sock"})
			if !assert.NoError(t, err) {
				return
			}
			defer registry.Close()

			counter := registry.Counter("work", map[string]string{"producer": fmt.Sprintf("p%d", id)})
			for j := 0; j < perProducer; j++ {
				counter.Increment(1)
			}
		}(i)
	}
	wg.Wait()

	waitForOps(t, recorder, producers*perProducer)

	perLabel := make(map[string]int)
	for _, op := range recorder.snapshot() {
		assert.Equal(t, wire.OpIncrementCounter, op.op)
		assert.Equal(t, "work", op.name)
		perLabel[op.labels["producer"]]++
	}
	require.Len(t, perLabel, producers)
	for label, count := range perLabel {
		assert.Equal(t, perProducer, count, label)
	}
	assert.Zero(t, c.Malformed())
}

func TestMalformedFramesAreDroppedNotFatal(t *testing.T) {
	recorder := &captureRecorder{}
	c, err := New(Config{
		SocketName: "metricflow-test-malformed.sock",
		Recorder:   recorder,
	})
	require.NoError(t, err)
	stop := c.Start(context.Background())
	defer stop()

	conn, err := socket.Dial(socket.Options{Name: "metricflow-test-malformed.sock"})
	require.NoError(t, err)
	defer conn.Close()

	valid, err := wire.EncodeFrame(wire.MetricDataEvent(wire.MetricData{
		Name:      "requests",
		Labels:    wire.LabelSet{},
		Operation: wire.IncrementCounter(1),
	}))
	require.NoError(t, err)

	_, err = conn.Write(valid)
	require.NoError(t, err)
	_, err = conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)
	// The connection must survive the bad frame.
	_, err = conn.Write(valid)
	require.NoError(t, err)

	waitForOps(t, recorder, 2)
	require.Eventually(t, func() bool {
		return c.Malformed() == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, recorder.opCount())
}

func TestStopRemovesSocketFile(t *testing.T) {
	c, err := New(Config{
		SocketName: "metricflow-test-cleanup.sock",
		Filesystem: true,
		Recorder:   &captureRecorder{},
	})
	require.NoError(t, err)

	path := c.Path()
	require.NotEmpty(t, path)
	_, err = os.Stat(path)
	require.NoError(t, err, "socket file should exist while listening")

	stop := c.Start(context.Background())
	require.NoError(t, stop())

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist, "socket file should be removed after shutdown")
}

func TestPipeModeRunsUntilSenderCloses(t *testing.T) {
	recorder := &captureRecorder{}
	c, sender, err := NewPipe(Config{Recorder: recorder})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background())
	}()

	registry, err := emitter.NewPipe(sender, nil)
	require.NoError(t, err)

	registry.Gauge("queue_depth", nil).Set(7)
	registry.Histogram("latency", nil).Record(0.5)
	require.NoError(t, registry.Close())

	// Closing the only send end is end-of-stream, which ends Run without
	// cancellation.
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop after the sender closed")
	}

	ops := recorder.snapshot()
	require.Len(t, ops, 2)
	assert.Equal(t, wire.OpSetGauge, ops[0].op)
	assert.Equal(t, 7.0, ops[0].fval)
	assert.Equal(t, wire.OpRecordHistogram, ops[1].op)
	assert.Equal(t, 0.5, ops[1].fval)
}

func TestRunStopsOnCancel(t *testing.T) {
	c, err := New(Config{
		SocketName: "metricflow-test-cancel.sock",
		Recorder:   &captureRecorder{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	// A connected producer that never disconnects must not block shutdown.
	conn, err := socket.Dial(socket.Options{Name: "metricflow-test-cancel.sock"})
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop after cancellation")
	}
}

func TestPipeRunStopsOnCancelWithOpenSender(t *testing.T) {
	recorder := &captureRecorder{}
	c, sender, err := NewPipe(Config{Recorder: recorder})
	require.NoError(t, err)
	defer sender.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	// Make sure the single pipe connection is being served before
	// cancelling, so shutdown has to abandon it rather than refuse it.
	registry, err := emitter.NewPipe(sender, nil)
	require.NoError(t, err)
	registry.Counter("work", nil).Increment(1)
	waitForOps(t, recorder, 1)

	// The sender stays open: only abandoning the connection can end Run.
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("pipe collector did not stop after cancellation")
	}
}
