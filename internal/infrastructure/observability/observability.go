package observability

import (
	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
)

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

type registeredMetrics struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
	gauges     map[observability.MetricKey]observability.Gauge
}

func (m *registeredMetrics) Counter(name observability.MetricKey) observability.Counter {
	if m == nil || m.counters == nil {
		return observability.NopCounter()
	}
	if c, ok := m.counters[name]; ok && c != nil {
		return c
	}
	return observability.NopCounter()
}

func (m *registeredMetrics) Histogram(name observability.MetricKey) observability.Histogram {
	if m == nil || m.histograms == nil {
		return observability.NopHistogram()
	}
	if h, ok := m.histograms[name]; ok && h != nil {
		return h
	}
	return observability.NopHistogram()
}

func (m *registeredMetrics) Gauge(name observability.MetricKey) observability.Gauge {
	if m == nil || m.gauges == nil {
		return observability.NopGauge()
	}
	if g, ok := m.gauges[name]; ok && g != nil {
		return g
	}
	return observability.NopGauge()
}

// New assembles an Observability provider backed by the supplied tracer, logger, and metric instruments.
func New(
	tracer observability.Tracer,
	logger observability.Logger,
	counters map[observability.MetricKey]observability.Counter,
	histograms map[observability.MetricKey]observability.Histogram,
	gauges map[observability.MetricKey]observability.Gauge,
) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	var metrics observability.Metrics = observability.NopMetrics()
	if len(counters) > 0 || len(histograms) > 0 || len(gauges) > 0 {
		m := &registeredMetrics{
			counters:   make(map[observability.MetricKey]observability.Counter, len(counters)),
			histograms: make(map[observability.MetricKey]observability.Histogram, len(histograms)),
			gauges:     make(map[observability.MetricKey]observability.Gauge, len(gauges)),
		}
		for k, v := range counters {
			if v == nil {
				continue
			}
			m.counters[k] = v
		}
		for k, v := range histograms {
			if v == nil {
				continue
			}
			m.histograms[k] = v
		}
		for k, v := range gauges {
			if v == nil {
				continue
			}
			m.gauges[k] = v
		}
		metrics = m
	}

	return &provider{
		tracer:  tracer,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *provider) Tracer() observability.Tracer {
	return p.tracer
}

func (p *provider) Logger() observability.Logger {
	return p.logger
}

func (p *provider) Metrics() observability.Metrics {
	if p.metrics == nil {
		return observability.NopMetrics()
	}
	return p.metrics
}
