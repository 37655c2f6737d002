package promfacade

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// errFamilyMismatch reports a series request whose label names do not match
// the dimensions the family was created with.
var errFamilyMismatch = errors.New("metricflow: label names do not match metric family")

// A family is either a single plain collector (no labels) or a vector whose
// label names were fixed by the first series requested under the name.
// Registration failures poison the family: its series resolve to an error
// and updates are swallowed upstream.

type counterFamily struct {
	names []string
	plain prometheus.Counter
	vec   *prometheus.CounterVec
	err   error
}

func newCounterFamily(name, help string, names []string, registerer prometheus.Registerer) *counterFamily {
	family := &counterFamily{names: names}
	opts := prometheus.CounterOpts{Name: name, Help: help}
	if len(names) == 0 {
		family.plain = prometheus.NewCounter(opts)
		family.err = registerer.Register(family.plain)
	} else {
		family.vec = prometheus.NewCounterVec(opts, names)
		family.err = registerer.Register(family.vec)
	}
	return family
}

func (f *counterFamily) series(labels map[string]string) (prometheus.Counter, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(labels) == 0 {
		if f.plain == nil {
			return nil, errFamilyMismatch
		}
		return f.plain, nil
	}
	if f.vec == nil || len(labels) != len(f.names) {
		return nil, errFamilyMismatch
	}
	return f.vec.GetMetricWith(prometheus.Labels(labels))
}

type gaugeFamily struct {
	names []string
	plain prometheus.Gauge
	vec   *prometheus.GaugeVec
	err   error
}

func newGaugeFamily(name, help string, names []string, registerer prometheus.Registerer) *gaugeFamily {
	family := &gaugeFamily{names: names}
	opts := prometheus.GaugeOpts{Name: name, Help: help}
	if len(names) == 0 {
		family.plain = prometheus.NewGauge(opts)
		family.err = registerer.Register(family.plain)
	} else {
		family.vec = prometheus.NewGaugeVec(opts, names)
		family.err = registerer.Register(family.vec)
	}
	return family
}

func (f *gaugeFamily) series(labels map[string]string) (prometheus.Gauge, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(labels) == 0 {
		if f.plain == nil {
			return nil, errFamilyMismatch
		}
		return f.plain, nil
	}
	if f.vec == nil || len(labels) != len(f.names) {
		return nil, errFamilyMismatch
	}
	return f.vec.GetMetricWith(prometheus.Labels(labels))
}

type histogramFamily struct {
	names []string
	plain prometheus.Histogram
	vec   *prometheus.HistogramVec
	err   error
}

func newHistogramFamily(name, help string, names []string, buckets []float64, registerer prometheus.Registerer) *histogramFamily {
	family := &histogramFamily{names: names}
	opts := prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}
	if len(names) == 0 {
		family.plain = prometheus.NewHistogram(opts)
		family.err = registerer.Register(family.plain)
	} else {
		family.vec = prometheus.NewHistogramVec(opts, names)
		family.err = registerer.Register(family.vec)
	}
	return family
}

func (f *histogramFamily) series(labels map[string]string) (prometheus.Observer, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(labels) == 0 {
		if f.plain == nil {
			return nil, errFamilyMismatch
		}
		return f.plain, nil
	}
	if f.vec == nil || len(labels) != len(f.names) {
		return nil, errFamilyMismatch
	}
	return f.vec.GetMetricWith(prometheus.Labels(labels))
}
