// Package metrics exposes the control plane's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// PublishTotal counts template publish attempts by outcome.
	PublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentmint_template_publish_total",
		Help: "Template publish attempts by outcome.",
	}, []string{"outcome"})

	// UpgradeTotal counts agent upgrade attempts by mode and outcome.
	UpgradeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentmint_agent_upgrade_total",
		Help: "Agent upgrade attempts by mode and outcome.",
	}, []string{"mode", "outcome"})

	// UpstreamRequests counts calls to external services by status.
	UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentmint_upstream_requests_total",
		Help: "Requests to upstream services by status class.",
	}, []string{"service", "status"})

	// RequestDuration observes HTTP handler latency.
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentmint_http_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func init() {
	registry.MustRegister(
		PublishTotal,
		UpgradeTotal,
		UpstreamRequests,
		RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
