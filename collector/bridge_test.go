package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/metricflow/facade"
	"github.com/drblury/metricflow/wire"
)

func TestApplyMetricMapsEveryOperation(t *testing.T) {
	labels := wire.LabelSet{"route": "/a"}

	tests := []struct {
		name string
		op   wire.MetricOperation
		want capturedOp
	}{
		{
			name: "increment counter",
			op:   wire.IncrementCounter(3),
			want: capturedOp{op: wire.OpIncrementCounter, uval: 3},
		},
		{
			name: "set counter",
			op:   wire.SetCounter(42),
			want: capturedOp{op: wire.OpSetCounter, uval: 42},
		},
		{
			name: "increment gauge",
			op:   wire.IncrementGauge(1.5),
			want: capturedOp{op: wire.OpIncrementGauge, fval: 1.5},
		},
		{
			name: "decrement gauge",
			op:   wire.DecrementGauge(0.5),
			want: capturedOp{op: wire.OpDecrementGauge, fval: 0.5},
		},
		{
			name: "set gauge",
			op:   wire.SetGauge(-2),
			want: capturedOp{op: wire.OpSetGauge, fval: -2},
		},
		{
			name: "record histogram",
			op:   wire.RecordHistogram(0.125),
			want: capturedOp{op: wire.OpRecordHistogram, fval: 0.125},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &captureRecorder{}
			applyEvent(recorder, wire.MetricDataEvent(wire.MetricData{
				Name:      "m",
				Labels:    labels,
				Operation: tt.op,
			}))

			ops := recorder.snapshot()
			require.Len(t, ops, 1)
			tt.want.name = "m"
			tt.want.labels = labels
			assert.Equal(t, tt.want, ops[0])
		})
	}
}

func TestApplyMetricEmptyLabelsSelectPlainSeries(t *testing.T) {
	recorder := &captureRecorder{}
	applyEvent(recorder, wire.MetricDataEvent(wire.MetricData{
		Name:      "plain",
		Labels:    wire.LabelSet{},
		Operation: wire.IncrementCounter(1),
	}))

	ops := recorder.snapshot()
	require.Len(t, ops, 1)
	assert.Nil(t, ops[0].labels)
}

func TestApplyMetadata(t *testing.T) {
	recorder := &captureRecorder{}

	applyEvent(recorder, wire.MetadataEvent(wire.MetricMetadata{
		Name:        "latency",
		Kind:        wire.KindHistogram,
		Description: "request latency",
		Unit:        "seconds",
	}))
	// An unknown unit string degrades to no unit instead of failing.
	applyEvent(recorder, wire.MetadataEvent(wire.MetricMetadata{
		Name: "odd",
		Kind: wire.KindGauge,
		Unit: "furlongs",
	}))

	recorder.mu.Lock()
	descriptions := append([]capturedDescription(nil), recorder.descriptions...)
	recorder.mu.Unlock()

	require.Len(t, descriptions, 2)
	assert.Equal(t, capturedDescription{
		kind:        wire.KindHistogram,
		name:        "latency",
		unit:        facade.UnitSeconds,
		description: "request latency",
	}, descriptions[0])
	assert.Equal(t, facade.UnitNone, descriptions[1].unit)
}

func TestApplyEventIgnoresEmptyEnvelope(t *testing.T) {
	recorder := &captureRecorder{}
	applyEvent(recorder, wire.MetricEvent{})
	assert.Zero(t, recorder.opCount())
	assert.Empty(t, recorder.descriptions)
}
