package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "balancer"

// PrometheusMetrics mirrors the collector's events into a private registry,
// so several collectors can coexist in one process.
type PrometheusMetrics struct {
	registry        *prometheus.Registry
	selections      *prometheus.CounterVec
	responses       *prometheus.CounterVec
	forwardFailures *prometheus.CounterVec
	forwardDuration *prometheus.HistogramVec
	instanceHealthy *prometheus.GaugeVec
	unavailable     prometheus.Counter
}

func NewPrometheusMetrics() *PrometheusMetrics {
	pm := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Number of times an instance was picked by round robin.",
		}, []string{"instance"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Upstream responses relayed to clients by status code.",
		}, []string{"instance", "code"}),
		forwardFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_failures_total",
			Help:      "Requests that could not reach the selected instance.",
		}, []string{"instance"}),
		forwardDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forward_duration_seconds",
			Help:      "Time spent waiting on the upstream instance.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"instance"}),
		instanceHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_healthy",
			Help:      "Last probe result per instance (1 = UP, 0 = DOWN).",
		}, []string{"instance"}),
		unavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unavailable_total",
			Help:      "Requests rejected because no healthy instance existed.",
		}),
	}

	pm.registry.MustRegister(
		pm.selections,
		pm.responses,
		pm.forwardFailures,
		pm.forwardDuration,
		pm.instanceHealthy,
		pm.unavailable,
	)

	return pm
}

func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}
