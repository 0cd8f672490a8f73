package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/step-engine/internal/cache"
	"github.com/notifyhub/step-engine/internal/dispatcher"
	"github.com/notifyhub/step-engine/internal/domain"
	"github.com/notifyhub/step-engine/internal/preference"
	"github.com/notifyhub/step-engine/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	StepDecisions     *prometheus.CounterVec
	EvaluationLatency *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	TraceFailures     *prometheus.CounterVec
	StepsHandedOver   *prometheus.CounterVec
	ProviderLatency   *prometheus.HistogramVec
	JobsAbandoned     prometheus.Counter
	JobsReleased      prometheus.Counter
	QueueDepthHigh    prometheus.Gauge
	QueueDepthNormal  prometheus.Gauge
	QueueDepthLow     prometheus.Gauge
}

// New registers all instruments with reg. A custom registry keeps tests
// isolated from global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StepDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "step_decisions_total",
			Help: "Step evaluations by step type and outcome.",
		}, []string{"step_type", "outcome"}),

		EvaluationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "step_evaluation_seconds",
			Help:    "Time spent deciding and dispatching one step.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step_type"}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entity_cache_lookups_total",
			Help: "Entity cache lookups by entity and result (hit or miss).",
		}, []string{"entity", "result"}),

		TraceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "execution_detail_failures_total",
			Help: "Execution details that could not be appended, by detail kind.",
		}, []string{"detail"}),

		StepsHandedOver: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steps_handed_over_total",
			Help: "Steps accepted by the channel provider.",
		}, []string{"step_type"}),

		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provider_send_seconds",
			Help:    "Latency of provider hand-over calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step_type"}),

		JobsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_abandoned_total",
			Help: "Jobs marked failed because a referenced entity is missing.",
		}),
		JobsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_released_total",
			Help: "Jobs whose claim was released after a dispatch error.",
		}),

		QueueDepthHigh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_high",
			Help: "Current number of items in the high-priority queue.",
		}),
		QueueDepthNormal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_normal",
			Help: "Current number of items in the normal-priority queue.",
		}),
		QueueDepthLow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_low",
			Help: "Current number of items in the low-priority queue.",
		}),
	}

	reg.MustRegister(
		m.StepDecisions,
		m.EvaluationLatency,
		m.CacheLookups,
		m.TraceFailures,
		m.StepsHandedOver,
		m.ProviderLatency,
		m.JobsAbandoned,
		m.JobsReleased,
		m.QueueDepthHigh,
		m.QueueDepthNormal,
		m.QueueDepthLow,
	)
	return m
}

// DispatcherHooks feeds decision outcomes and latency.
func (m *Metrics) DispatcherHooks() dispatcher.Hooks {
	return dispatcher.Hooks{
		OnDecision: func(st domain.StepType, outcome dispatcher.Outcome, latency time.Duration) {
			m.StepDecisions.WithLabelValues(string(st), string(outcome)).Inc()
			m.EvaluationLatency.WithLabelValues(string(st)).Observe(latency.Seconds())
		},
		OnTraceFailure: m.traceFailed,
	}
}

func (m *Metrics) PreferenceHooks() preference.Hooks {
	return preference.Hooks{OnTraceFailure: m.traceFailed}
}

func (m *Metrics) CacheHooks() cache.Hooks {
	return cache.Hooks{
		OnHit:  func(entity string) { m.CacheLookups.WithLabelValues(entity, "hit").Inc() },
		OnMiss: func(entity string) { m.CacheLookups.WithLabelValues(entity, "miss").Inc() },
	}
}

func (m *Metrics) WorkerHooks() worker.MetricHooks {
	return worker.MetricHooks{
		OnAbandoned: m.JobsAbandoned.Inc,
		OnReleased:  m.JobsReleased.Inc,
	}
}

// OnSent is passed to the provider handler.
func (m *Metrics) OnSent(st domain.StepType, latency time.Duration) {
	m.StepsHandedOver.WithLabelValues(string(st)).Inc()
	m.ProviderLatency.WithLabelValues(string(st)).Observe(latency.Seconds())
}

// SetQueueDepths is passed to the sweeper.
func (m *Metrics) SetQueueDepths(high, normal, low int) {
	m.QueueDepthHigh.Set(float64(high))
	m.QueueDepthNormal.Set(float64(normal))
	m.QueueDepthLow.Set(float64(low))
}

func (m *Metrics) traceFailed(detail string) {
	m.TraceFailures.WithLabelValues(detail).Inc()
}
