// Package otelfacade implements the facade.Recorder surface on top of an
// OpenTelemetry Meter. Instruments are created lazily on first use with the
// description and unit known at that point; labels become attributes.
package otelfacade

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/drblury/metricflow/facade"
)

// Recorder applies metric events to OpenTelemetry instruments.
type Recorder struct {
	meter otelmetric.Meter

	mu           sync.Mutex
	descriptions map[string]description
	counters     map[string]otelmetric.Int64Counter
	gauges       map[string]otelmetric.Float64Gauge
	histograms   map[string]otelmetric.Float64Histogram
	absolutes    map[string]uint64
	gaugeShadow  map[string]float64
}

type description struct {
	text string
	unit facade.Unit
}

// New creates an OTel-backed recorder over the given meter.
func New(meter otelmetric.Meter) *Recorder {
	return &Recorder{
		meter:        meter,
		descriptions: make(map[string]description),
		counters:     make(map[string]otelmetric.Int64Counter),
		gauges:       make(map[string]otelmetric.Float64Gauge),
		histograms:   make(map[string]otelmetric.Float64Histogram),
		absolutes:    make(map[string]uint64),
		gaugeShadow:  make(map[string]float64),
	}
}

// DescribeCounter stores description/unit applied when the counter
// instrument is first created. Re-describing is idempotent, last write wins.
func (r *Recorder) DescribeCounter(name string, unit facade.Unit, desc string) {
	r.describe(name, unit, desc)
}

// DescribeGauge stores description/unit for the gauge instrument.
func (r *Recorder) DescribeGauge(name string, unit facade.Unit, desc string) {
	r.describe(name, unit, desc)
}

// DescribeHistogram stores description/unit for the histogram instrument.
func (r *Recorder) DescribeHistogram(name string, unit facade.Unit, desc string) {
	r.describe(name, unit, desc)
}

func (r *Recorder) describe(name string, unit facade.Unit, desc string) {
	r.mu.Lock()
	r.descriptions[name] = description{text: desc, unit: unit}
	r.mu.Unlock()
}

// Counter returns the counter series for the name/label pair.
func (r *Recorder) Counter(name string, labels map[string]string) facade.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter, ok := r.counters[name]
	if !ok {
		var err error
		counter, err = r.meter.Int64Counter(name, r.options(name)...)
		if err != nil {
			return nopCounter{}
		}
		r.counters[name] = counter
	}
	return &otelCounter{
		recorder: r,
		key:      seriesKey(name, labels),
		counter:  counter,
		attrs:    toAttributes(labels),
	}
}

// Gauge returns the gauge series for the name/label pair. Increment and
// decrement are applied to a per-series shadow value and the result is
// recorded, since OTel gauges only support setting.
func (r *Recorder) Gauge(name string, labels map[string]string) facade.Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	gauge, ok := r.gauges[name]
	if !ok {
		var err error
		gauge, err = r.meter.Float64Gauge(name, r.gaugeOptions(name)...)
		if err != nil {
			return nopGauge{}
		}
		r.gauges[name] = gauge
	}
	return &otelGauge{
		recorder: r,
		key:      seriesKey(name, labels),
		gauge:    gauge,
		attrs:    toAttributes(labels),
	}
}

// Histogram returns the histogram series for the name/label pair.
func (r *Recorder) Histogram(name string, labels map[string]string) facade.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	histogram, ok := r.histograms[name]
	if !ok {
		var err error
		histogram, err = r.meter.Float64Histogram(name, r.histogramOptions(name)...)
		if err != nil {
			return nopHistogram{}
		}
		r.histograms[name] = histogram
	}
	return otelHistogram{histogram: histogram, attrs: toAttributes(labels)}
}

func (r *Recorder) options(name string) []otelmetric.Int64CounterOption {
	desc, ok := r.descriptions[name]
	if !ok {
		return nil
	}
	opts := []otelmetric.Int64CounterOption{otelmetric.WithDescription(desc.text)}
	if unit := ucumUnit(desc.unit); unit != "" {
		opts = append(opts, otelmetric.WithUnit(unit))
	}
	return opts
}

func (r *Recorder) gaugeOptions(name string) []otelmetric.Float64GaugeOption {
	desc, ok := r.descriptions[name]
	if !ok {
		return nil
	}
	opts := []otelmetric.Float64GaugeOption{otelmetric.WithDescription(desc.text)}
	if unit := ucumUnit(desc.unit); unit != "" {
		opts = append(opts, otelmetric.WithUnit(unit))
	}
	return opts
}

func (r *Recorder) histogramOptions(name string) []otelmetric.Float64HistogramOption {
	desc, ok := r.descriptions[name]
	if !ok {
		return nil
	}
	opts := []otelmetric.Float64HistogramOption{otelmetric.WithDescription(desc.text)}
	if unit := ucumUnit(desc.unit); unit != "" {
		opts = append(opts, otelmetric.WithUnit(unit))
	}
	return opts
}

// ucumUnit maps the wire unit vocabulary to UCUM spellings used by OTel.
func ucumUnit(unit facade.Unit) string {
	switch unit {
	case facade.UnitCount:
		return "1"
	case facade.UnitPercent:
		return "%"
	case facade.UnitSeconds:
		return "s"
	case facade.UnitMilliseconds:
		return "ms"
	case facade.UnitMicroseconds:
		return "us"
	case facade.UnitNanoseconds:
		return "ns"
	case facade.UnitBytes:
		return "By"
	case facade.UnitKibibytes:
		return "KiBy"
	case facade.UnitMebibytes:
		return "MiBy"
	case facade.UnitGibibytes:
		return "GiBy"
	case facade.UnitTebibytes:
		return "TiBy"
	case facade.UnitCountPerSecond:
		return "1/s"
	case facade.UnitBytesPerSecond:
		return "By/s"
	default:
		return ""
	}
}

func toAttributes(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, attribute.String(key, labels[key]))
	}
	return attrs
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, key := range keys {
		b.WriteByte(0)
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(labels[key])
	}
	return b.String()
}

type otelCounter struct {
	recorder *Recorder
	key      string
	counter  otelmetric.Int64Counter
	attrs    []attribute.KeyValue
}

func (c *otelCounter) Increment(delta uint64) {
	c.counter.Add(context.Background(), clampInt64(delta), otelmetric.WithAttributes(c.attrs...))
}

// SetAbsolute adds the non-negative delta from the last absolute value,
// keeping the counter monotonic.
func (c *otelCounter) SetAbsolute(value uint64) {
	r := c.recorder
	r.mu.Lock()
	last := r.absolutes[c.key]
	if value > last {
		r.absolutes[c.key] = value
	}
	r.mu.Unlock()

	if value > last {
		c.counter.Add(context.Background(), clampInt64(value-last), otelmetric.WithAttributes(c.attrs...))
	}
}

type otelGauge struct {
	recorder *Recorder
	key      string
	gauge    otelmetric.Float64Gauge
	attrs    []attribute.KeyValue
}

func (g *otelGauge) Increment(delta float64) { g.apply(func(v float64) float64 { return v + delta }) }
func (g *otelGauge) Decrement(delta float64) { g.apply(func(v float64) float64 { return v - delta }) }
func (g *otelGauge) Set(value float64)       { g.apply(func(float64) float64 { return value }) }

func (g *otelGauge) apply(update func(float64) float64) {
	r := g.recorder
	r.mu.Lock()
	value := update(r.gaugeShadow[g.key])
	r.gaugeShadow[g.key] = value
	r.mu.Unlock()

	g.gauge.Record(context.Background(), value, otelmetric.WithAttributes(g.attrs...))
}

type otelHistogram struct {
	histogram otelmetric.Float64Histogram
	attrs     []attribute.KeyValue
}

func (h otelHistogram) Record(sample float64) {
	h.histogram.Record(context.Background(), sample, otelmetric.WithAttributes(h.attrs...))
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

type (
	nopCounter   struct{}
	nopGauge     struct{}
	nopHistogram struct{}
)

func (nopCounter) Increment(uint64)   {}
func (nopCounter) SetAbsolute(uint64) {}
func (nopGauge) Increment(float64)    {}
func (nopGauge) Decrement(float64)    {}
func (nopGauge) Set(float64)          {}
func (nopHistogram) Record(float64)   {}
