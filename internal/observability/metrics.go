package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// oslab-api HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oslab_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oslab_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	ActiveRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "oslab_active_requests",
		Help: "Current in-flight requests",
	})

	// session registry metrics
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "oslab_sessions_active",
		Help: "Live execution sessions",
	})

	SessionAcquireSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oslab_session_acquire_seconds",
		Help:    "Time from acquire call to a usable session",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	SessionAcquireJoinsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oslab_session_acquire_joins_total",
		Help: "Acquire calls that joined an in-flight construction",
	})

	SessionsReapedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oslab_sessions_reaped_total",
		Help: "Sessions torn down by the idle janitor",
	})

	// execution session metrics
	SessionStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oslab_session_state_transitions_total",
		Help: "Session state transition count",
	}, []string{"from", "to"})

	SandboxBootSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oslab_sandbox_boot_seconds",
		Help:    "Sandbox environment provisioning duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	QueuedWritesReplayedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oslab_queued_writes_replayed_total",
		Help: "Pre-ready file writes replayed at the Ready transition",
	})

	WriteQueueOverflowTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oslab_write_queue_overflow_total",
		Help: "File writes rejected because the pre-ready queue was full",
	})

	// publication metrics
	PublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oslab_publish_total",
		Help: "Publish operations by outcome",
	}, []string{"outcome"})

	PreviewRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oslab_preview_requests_total",
		Help: "Preview metadata lookups by outcome",
	}, []string{"outcome"})
)

func RegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, ActiveRequests,
		SessionsActive, SessionAcquireSeconds, SessionAcquireJoinsTotal, SessionsReapedTotal,
		SessionStateTransitions, SandboxBootSeconds,
		QueuedWritesReplayedTotal, WriteQueueOverflowTotal,
		PublishTotal, PreviewRequestsTotal,
	)
}
