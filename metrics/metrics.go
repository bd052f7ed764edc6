// Package metrics holds the Prometheus collectors of the login service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login attempt outcomes
const (
	LoginRedirected    = "redirected"
	LoginInvalidDomain = "invalid_domain"
	LoginError         = "error"
)

// Verification results
const (
	VerificationVerified = "verified"
	VerificationRejected = "rejected"
	VerificationError    = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	LoginAttemptsTotal   *prometheus.CounterVec
	VerificationsTotal   *prometheus.CounterVec
	VerificationDuration prometheus.Histogram
	LogoutsTotal         prometheus.Counter
	HTTPRequestsTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on registry
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "domainauth_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "domainauth_verifications_total",
				Help: "Total number of identity manager responses checked, by result",
			},
			[]string{"result"},
		),
		VerificationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "domainauth_verification_duration_seconds",
				Help:    "Time spent verifying identity manager responses",
				Buckets: prometheus.DefBuckets,
			},
		),
		LogoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "domainauth_logouts_total",
				Help: "Total number of logout requests",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "domainauth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
	}

	registry.MustRegister(
		m.LoginAttemptsTotal,
		m.VerificationsTotal,
		m.VerificationDuration,
		m.LogoutsTotal,
		m.HTTPRequestsTotal,
	)

	return m
}

// LoginAttempt records the outcome of a login initiation
func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
}

// Verification records a verification result and how long it took
func (m *Metrics) Verification(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.VerificationsTotal.WithLabelValues(result).Inc()
	m.VerificationDuration.Observe(took.Seconds())
}

// Logout records a logout request
func (m *Metrics) Logout() {
	if m == nil {
		return
	}
	m.LogoutsTotal.Inc()
}

// HTTPRequest records a served request
func (m *Metrics) HTTPRequest(method, route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
