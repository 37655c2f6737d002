package collector

import (
	"github.com/drblury/metricflow/facade"
	"github.com/drblury/metricflow/wire"
)

// applyEvent maps one decoded event to exactly one facade call, in arrival
// order. No batching, no deduplication.
func applyEvent(recorder facade.Recorder, event wire.MetricEvent) {
	switch {
	case event.Metadata != nil:
		applyMetadata(recorder, *event.Metadata)
	case event.Metric != nil:
		applyMetric(recorder, *event.Metric)
	}
}

func applyMetadata(recorder facade.Recorder, metadata wire.MetricMetadata) {
	// Unrecognized unit strings are treated as absent.
	unit, _ := facade.ParseUnit(metadata.Unit)

	switch metadata.Kind {
	case wire.KindCounter:
		recorder.DescribeCounter(metadata.Name, unit, metadata.Description)
	case wire.KindGauge:
		recorder.DescribeGauge(metadata.Name, unit, metadata.Description)
	case wire.KindHistogram:
		recorder.DescribeHistogram(metadata.Name, unit, metadata.Description)
	}
}

func applyMetric(recorder facade.Recorder, metric wire.MetricData) {
	// An empty label set selects the plain series, never a labeled one.
	var labels map[string]string
	if len(metric.Labels) > 0 {
		labels = metric.Labels
	}

	op := metric.Operation
	switch op.Op {
	case wire.OpIncrementCounter:
		recorder.Counter(metric.Name, labels).Increment(op.CounterValue)
	case wire.OpSetCounter:
		recorder.Counter(metric.Name, labels).SetAbsolute(op.CounterValue)
	case wire.OpIncrementGauge:
		recorder.Gauge(metric.Name, labels).Increment(op.SampleValue)
	case wire.OpDecrementGauge:
		recorder.Gauge(metric.Name, labels).Decrement(op.SampleValue)
	case wire.OpSetGauge:
		recorder.Gauge(metric.Name, labels).Set(op.SampleValue)
	case wire.OpRecordHistogram:
		recorder.Histogram(metric.Name, labels).Record(op.SampleValue)
	}
}
