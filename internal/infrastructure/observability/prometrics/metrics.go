package prometrics

import (
	"sync"

	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry exposes the subset of Prometheus registry functionality needed by the billing engine.
type Registry interface {
	Counter(name string, help string, labelKeys ...string) observability.Counter
	Histogram(name string, help string, buckets []float64, labelKeys ...string) observability.Histogram
	Gauge(name string, help string, labelKeys ...string) observability.Gauge
}

type registry struct {
	counters   sync.Map // name -> *prometheus.CounterVec
	histograms sync.Map // name -> *prometheus.HistogramVec
	gauges     sync.Map // name -> *prometheus.GaugeVec
	namespace  string
	subsystem  string
	reg        prometheus.Registerer
}

// New returns a registry that registers collectors on reg, or on the default registerer when reg is nil.
func New(namespace, subsystem string, reg prometheus.Registerer) Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &registry{namespace: namespace, subsystem: subsystem, reg: reg}
}

type counter struct{ v *prometheus.CounterVec }

func (c *counter) Add(d float64, labels ...observability.Label) {
	c.v.With(labelMap(labels)).Add(d)
}

func (c *counter) Bind(labels ...observability.Label) observability.BoundCounter {
	return &boundCounter{v: c.v, labels: labelMap(labels)}
}

type boundCounter struct {
	v      *prometheus.CounterVec
	labels prometheus.Labels
}

func (c *boundCounter) Add(d float64) {
	if c == nil || c.v == nil {
		return
	}
	c.v.With(c.labels).Add(d)
}

type histogram struct{ v *prometheus.HistogramVec }

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	h.v.With(labelMap(labels)).Observe(v)
}

func (h *histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	return &boundHistogram{v: h.v, labels: labelMap(labels)}
}

type boundHistogram struct {
	v      *prometheus.HistogramVec
	labels prometheus.Labels
}

func (h *boundHistogram) Observe(v float64) {
	if h == nil || h.v == nil {
		return
	}
	h.v.With(h.labels).Observe(v)
}

type gauge struct{ v *prometheus.GaugeVec }

func (g *gauge) Set(v float64, labels ...observability.Label) {
	g.v.With(labelMap(labels)).Set(v)
}

func labelMap(ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		m[l.Key] = l.Value
	}
	return m
}

func (r *registry) Counter(name string, help string, labelKeys ...string) observability.Counter {
	// ensure only registered once
	if v, ok := r.counters.Load(name); ok {
		return &counter{v: v.(*prometheus.CounterVec)}
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help,
	}, labelKeys)
	r.reg.MustRegister(cv)
	r.counters.Store(name, cv)
	return &counter{v: cv}
}

func (r *registry) Histogram(name string, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	if v, ok := r.histograms.Load(name); ok {
		return &histogram{v: v.(*prometheus.HistogramVec)}
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help, Buckets: buckets,
	}, labelKeys)
	r.reg.MustRegister(hv)
	r.histograms.Store(name, hv)
	return &histogram{v: hv}
}

func (r *registry) Gauge(name string, help string, labelKeys ...string) observability.Gauge {
	if v, ok := r.gauges.Load(name); ok {
		return &gauge{v: v.(*prometheus.GaugeVec)}
	}
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help,
	}, labelKeys)
	r.reg.MustRegister(gv)
	r.gauges.Store(name, gv)
	return &gauge{v: gv}
}

// Standard builds the instruments the billing engine reports to.
func Standard(r Registry) (map[observability.MetricKey]observability.Counter, map[observability.MetricKey]observability.Histogram, map[observability.MetricKey]observability.Gauge) {
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: r.Counter(string(observability.MUsecaseRequests),
			"Total number of billing operations.", "use_case", "outcome"),
		observability.MExternalRequests: r.Counter(string(observability.MExternalRequests),
			"Total number of calls made to the billing service.", "method", "outcome"),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: r.Histogram(string(observability.MUsecaseDuration),
			"Duration of billing operations in seconds.", prometheus.DefBuckets, "use_case"),
		observability.MExternalRequestDuration: r.Histogram(string(observability.MExternalRequestDuration),
			"Duration of billing service calls in seconds.", prometheus.DefBuckets, "method"),
	}
	gauges := map[observability.MetricKey]observability.Gauge{
		observability.MPurchaseFlowsActive: r.Gauge(string(observability.MPurchaseFlowsActive),
			"Purchase flows currently registered.", "category"),
	}
	return counters, histograms, gauges
}
