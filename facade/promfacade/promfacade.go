// Package promfacade implements the facade.Recorder surface on top of a
// Prometheus registry. Instrument families are created lazily on first use;
// the label names seen first fix a family's dimensions, matching how
// Prometheus models series.
package promfacade

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/metricflow/facade"
)

// Config configures the Prometheus recorder.
type Config struct {
	// Registerer receives the lazily created collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// HistogramBuckets overrides the default bucket layout for histogram
	// families.
	HistogramBuckets []float64
}

// Recorder applies metric events to Prometheus collectors.
type Recorder struct {
	registerer prometheus.Registerer
	buckets    []float64

	mu           sync.Mutex
	descriptions map[string]string
	counters     map[string]*counterFamily
	gauges       map[string]*gaugeFamily
	histograms   map[string]*histogramFamily
	absolutes    map[string]uint64
}

// New creates a Prometheus-backed recorder.
func New(cfg Config) *Recorder {
	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	buckets := cfg.HistogramBuckets
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	return &Recorder{
		registerer:   registerer,
		buckets:      buckets,
		descriptions: make(map[string]string),
		counters:     make(map[string]*counterFamily),
		gauges:       make(map[string]*gaugeFamily),
		histograms:   make(map[string]*histogramFamily),
		absolutes:    make(map[string]uint64),
	}
}

// DescribeCounter stores help text for the counter family. Descriptions
// apply to families created after the describe call; re-describing a name is
// idempotent (last write wins).
func (r *Recorder) DescribeCounter(name string, unit facade.Unit, description string) {
	r.describe(name, unit, description)
}

// DescribeGauge stores help text for the gauge family.
func (r *Recorder) DescribeGauge(name string, unit facade.Unit, description string) {
	r.describe(name, unit, description)
}

// DescribeHistogram stores help text for the histogram family.
func (r *Recorder) DescribeHistogram(name string, unit facade.Unit, description string) {
	r.describe(name, unit, description)
}

func (r *Recorder) describe(name string, unit facade.Unit, description string) {
	help := description
	if unit != facade.UnitNone {
		help = description + " (" + unit.String() + ")"
	}
	r.mu.Lock()
	r.descriptions[name] = help
	r.mu.Unlock()
}

// Counter returns the counter series for the name/label pair.
func (r *Recorder) Counter(name string, labels map[string]string) facade.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	family, ok := r.counters[name]
	if !ok {
		family = newCounterFamily(name, r.help(name), labelNames(labels), r.registerer)
		r.counters[name] = family
	}

	counter, err := family.series(labels)
	if err != nil {
		return nopCounter{}
	}
	return &promCounter{recorder: r, key: seriesKey(name, labels), counter: counter}
}

// Gauge returns the gauge series for the name/label pair.
func (r *Recorder) Gauge(name string, labels map[string]string) facade.Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	family, ok := r.gauges[name]
	if !ok {
		family = newGaugeFamily(name, r.help(name), labelNames(labels), r.registerer)
		r.gauges[name] = family
	}

	gauge, err := family.series(labels)
	if err != nil {
		return nopGauge{}
	}
	return promGauge{gauge}
}

// Histogram returns the histogram series for the name/label pair.
func (r *Recorder) Histogram(name string, labels map[string]string) facade.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	family, ok := r.histograms[name]
	if !ok {
		family = newHistogramFamily(name, r.help(name), labelNames(labels), r.buckets, r.registerer)
		r.histograms[name] = family
	}

	histogram, err := family.series(labels)
	if err != nil {
		return nopHistogram{}
	}
	return promHistogram{histogram}
}

func (r *Recorder) help(name string) string {
	if help, ok := r.descriptions[name]; ok && help != "" {
		return help
	}
	return name
}

// setAbsolute emulates counter absolute-set: the non-negative delta from the
// last seen absolute value is added, keeping the series monotonic.
func (r *Recorder) setAbsolute(key string, value uint64, counter prometheus.Counter) {
	r.mu.Lock()
	last := r.absolutes[key]
	if value > last {
		r.absolutes[key] = value
	}
	r.mu.Unlock()

	if value > last {
		counter.Add(float64(value - last))
	}
}

func labelNames(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	for _, key := range labelNames(labels) {
		b.WriteByte(0)
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(labels[key])
	}
	return b.String()
}

type promCounter struct {
	recorder *Recorder
	key      string
	counter  prometheus.Counter
}

func (c *promCounter) Increment(delta uint64) {
	c.counter.Add(float64(delta))
}

func (c *promCounter) SetAbsolute(value uint64) {
	c.recorder.setAbsolute(c.key, value, c.counter)
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (g promGauge) Increment(delta float64) { g.gauge.Add(delta) }
func (g promGauge) Decrement(delta float64) { g.gauge.Sub(delta) }
func (g promGauge) Set(value float64)       { g.gauge.Set(value) }

type promHistogram struct {
	histogram prometheus.Observer
}

func (h promHistogram) Record(sample float64) {
	h.histogram.Observe(sample)
}

// The nop instruments swallow updates whose series could not be resolved,
// for example when a family was first seen with different label names.
// Backend registration conflicts must never crash the collector's data path.
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
