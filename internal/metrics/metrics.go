package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route pattern, method and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantcore",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	// HTTPRequestDuration tracks request latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tenantcore",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	// AuthResultsTotal counts authentication outcomes per strategy.
	AuthResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantcore",
		Subsystem: "auth",
		Name:      "results_total",
		Help:      "Authentication results by method and outcome.",
	}, []string{"method", "outcome"})

	// RateLimitedTotal counts API-key requests rejected by the hourly limit.
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tenantcore",
		Subsystem: "auth",
		Name:      "rate_limited_total",
		Help:      "API-key requests rejected by the per-tenant hourly limit.",
	})

	// ProvisioningTotal counts tenant provisioning attempts and outcomes.
	ProvisioningTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantcore",
		Subsystem: "tenants",
		Name:      "provisioning_total",
		Help:      "Total provisioning attempts by outcome.",
	}, []string{"outcome"})

	// SubscriptionTransitionsTotal counts subscription status changes by target status.
	SubscriptionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantcore",
		Subsystem: "subscriptions",
		Name:      "transitions_total",
		Help:      "Subscription status transitions by resulting status.",
	}, []string{"status"})

	// RenewalSweepItemsTotal counts subscriptions handled by the renewal sweep.
	RenewalSweepItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantcore",
		Subsystem: "renewal",
		Name:      "items_total",
		Help:      "Subscriptions processed by the renewal sweep by result.",
	}, []string{"result"})

	// RenewalSweepDuration tracks the duration of one renewal pass.
	RenewalSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tenantcore",
		Subsystem: "renewal",
		Name:      "sweep_duration_seconds",
		Help:      "Renewal sweep pass duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	// RenewalLastSuccess is the unix time of the last pass that completed.
	RenewalLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tenantcore",
		Subsystem: "renewal",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last completed renewal sweep pass.",
	})
)
