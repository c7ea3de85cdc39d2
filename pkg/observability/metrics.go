package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "itinera"

// Metrics holds the engine collectors.
type Metrics struct {
	registry *prometheus.Registry

	turns          *prometheus.CounterVec
	modelCalls     *prometheus.CounterVec
	modelLatency   prometheus.Histogram
	toolCalls      *prometheus.CounterVec
	toolLatency    *prometheus.HistogramVec
	checkpoints    *prometheus.CounterVec
	inflightTools  prometheus.Gauge
	degradedSource *prometheus.GaugeVec
}

// NewMetrics registers the engine collectors, plus the Go and process collectors,
// on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "User turns by outcome.",
		}, []string{"outcome"}),
		modelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model invocations by status.",
		}, []string{"status"}),
		modelLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_latency_seconds",
			Help:      "Model invocation latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_seconds",
			Help:      "Tool invocation latency in seconds.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"tool"}),
		checkpoints: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_appends_total",
			Help:      "Checkpoint store appends by status.",
		}, []string{"status"}),
		inflightTools: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tools_inflight",
			Help:      "Tool invocations currently running.",
		}),
		degradedSource: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tool_source_degraded",
			Help:      "1 when a tool source failed to load cleanly.",
		}, []string{"source"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SourceLoaded records whether a tool source came up degraded.
func (m *Metrics) SourceLoaded(source string, degraded bool) {
	v := 0.0
	if degraded {
		v = 1
	}
	m.degradedSource.WithLabelValues(source).Set(v)
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnModelReturn: func(_ context.Context, ev *domain.ModelEvent) {
			m.modelCalls.WithLabelValues(status(ev.Err)).Inc()
			m.modelLatency.Observe(ev.Duration.Seconds())
		},
		OnToolCall: func(context.Context, *domain.ToolEvent) {
			m.inflightTools.Inc()
		},
		OnToolReturn: func(_ context.Context, ev *domain.ToolEvent) {
			m.inflightTools.Dec()
			outcome := "ok"
			if ev.Err != nil {
				outcome = string(ev.Err.Reason)
			}
			m.toolCalls.WithLabelValues(ev.ToolName, outcome).Inc()
			m.toolLatency.WithLabelValues(ev.ToolName).Observe(ev.Duration.Seconds())
		},
		OnCheckpoint: func(_ context.Context, ev *domain.CheckpointEvent) {
			m.checkpoints.WithLabelValues(status(ev.Err)).Inc()
		},
		OnTurnEnd: func(_ context.Context, ev *domain.TurnEvent) {
			m.turns.WithLabelValues(ev.Outcome).Inc()
		},
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
