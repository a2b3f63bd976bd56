package capi

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the access layer.
// All methods are safe on a nil receiver.
type Metrics struct {
	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// Executor metrics
	executorAttempts *prometheus.CounterVec
	executorRetries  prometheus.Counter

	// Cache metrics
	cacheLookups *prometheus.CounterVec

	// Domain metrics
	authorizationDecisions *prometheus.CounterVec
	provisioningAttempts   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on registerer.
func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of Cloud Controller requests",
			},
			[]string{"method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of Cloud Controller requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		executorAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executor_attempts_total",
				Help:      "Total number of operation attempts by outcome",
			},
			[]string{"outcome"},
		),
		executorRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executor_retries_total",
				Help:      "Total number of retries after connection failures",
			},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of cache lookups by result",
			},
			[]string{"result"},
		),
		authorizationDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authorization_decisions_total",
				Help:      "Total number of authorization decisions by reason",
			},
			[]string{"decision", "reason"},
		),
		provisioningAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provisioning_attempts_total",
				Help:      "Total number of service provisioning attempts by outcome",
			},
			[]string{"offering", "outcome"},
		),
	}

	if registerer == nil {
		return metrics, nil
	}

	collectors := []prometheus.Collector{
		metrics.httpRequests,
		metrics.httpDuration,
		metrics.executorAttempts,
		metrics.executorRetries,
		metrics.cacheLookups,
		metrics.authorizationDecisions,
		metrics.provisioningAttempts,
	}

	for _, collector := range collectors {
		err := registerer.Register(collector)
		if err != nil {
			return nil, fmt.Errorf("registering metrics collector: %w", err)
		}
	}

	return metrics, nil
}

// ObserveRequest records a completed HTTP exchange. Status 0 means no response.
func (m *Metrics) ObserveRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	statusLabel := "error"
	if status > 0 {
		statusLabel = strconv.Itoa(status)
	}

	m.httpRequests.WithLabelValues(method, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveAttempt records the outcome of one executor attempt.
func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}

	m.executorAttempts.WithLabelValues(outcome).Inc()
}

// ObserveRetry records one executor retry.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}

	m.executorRetries.Inc()
}

// ObserveCacheLookup records a cache hit, miss, or refresh.
func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}

	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveAuthorization records an authorization decision.
func (m *Metrics) ObserveAuthorization(granted bool, reason string) {
	if m == nil {
		return
	}

	decision := "denied"
	if granted {
		decision = "granted"
	}

	m.authorizationDecisions.WithLabelValues(decision, reason).Inc()
}

// ObserveProvisioning records one provisioning attempt against an offering.
func (m *Metrics) ObserveProvisioning(offering, outcome string) {
	if m == nil {
		return
	}

	m.provisioningAttempts.WithLabelValues(offering, outcome).Inc()
}
