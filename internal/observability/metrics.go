package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framecheck",
		Name:      "jobs_submitted_total",
		Help:      "Total number of analysis jobs submitted",
	})

	JobTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framecheck",
		Name:      "job_transitions_total",
		Help:      "Job state transitions by target state",
	}, []string{"state"})

	StatusPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framecheck",
		Name:      "status_polls_total",
		Help:      "Detection service status polls by outcome",
	}, []string{"outcome"})

	ProgressRegressions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framecheck",
		Name:      "progress_regressions_total",
		Help:      "Progress reports ignored because they were lower than already seen",
	})

	JobProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "framecheck",
		Name:      "job_progress",
		Help:      "Progress of the current job (0-100)",
	})

	AnalysesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framecheck",
		Name:      "analyses_recorded_total",
		Help:      "Completed analyses persisted to history by verdict",
	}, []string{"prediction"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "framecheck",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	PanicsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framecheck",
		Name:      "http_panics_recovered_total",
		Help:      "Handler panics converted into 500 responses",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "framecheck",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
