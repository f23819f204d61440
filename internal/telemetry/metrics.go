package telemetry

import "github.com/prometheus/client_golang/prometheus"

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "whaleray",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

var DeploymentsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "whaleray",
		Subsystem: "deployments",
		Name:      "total",
		Help:      "Total number of deployments by terminal status.",
	},
	[]string{"status"},
)

var DeploymentStageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "whaleray",
		Subsystem: "deployments",
		Name:      "stage_duration_seconds",
		Help:      "Duration of a deployment pipeline stage in seconds.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	},
	[]string{"stage"},
)

var BuildPollDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "whaleray",
		Subsystem: "build",
		Name:      "poll_duration_seconds",
		Help:      "Duration of a CodeBuild BatchGetBuilds poll cycle in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	},
)

var OrphanSweepsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "whaleray",
		Subsystem: "deployments",
		Name:      "orphan_sweeps_total",
		Help:      "Total number of deployments marked *_TIMEOUT by the orphan sweeper.",
	},
)

var DatabaseTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "whaleray",
		Subsystem: "databases",
		Name:      "transitions_total",
		Help:      "Total number of per-user database lifecycle transitions.",
	},
	[]string{"state"},
)

var SlackNotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "whaleray",
		Subsystem: "slack",
		Name:      "notifications_total",
		Help:      "Total number of Slack notifications sent by type.",
	},
	[]string{"type"},
)

// All returns all WhaleRay-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		DeploymentsTotal,
		DeploymentStageDuration,
		BuildPollDuration,
		OrphanSweepsTotal,
		DatabaseTransitionsTotal,
		SlackNotificationsTotal,
	}
}
