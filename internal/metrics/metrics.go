package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions tracks gating decisions by outcome.
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "addongate_decisions_total",
		Help: "Total number of gating decisions by outcome",
	}, []string{"outcome"})

	// UpstreamDuration tracks upstream forwarding latency per route.
	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "addongate_upstream_duration_seconds",
		Help:    "Histogram of upstream request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// UpstreamErrors tracks failed upstream exchanges per route.
	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "addongate_upstream_errors_total",
		Help: "Total number of failed upstream requests",
	}, []string{"route"})

	// ActiveKeys tracks the number of keys by status.
	ActiveKeys = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "addongate_api_keys",
		Help: "Number of API key records by status",
	}, []string{"status"})
)
