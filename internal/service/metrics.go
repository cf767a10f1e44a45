package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AuthMetrics provides observability for the authentication flow. All
// services accept a nil *AuthMetrics; every record method is nil-safe so
// unit tests can skip registry setup entirely.
type AuthMetrics struct {
	Authentications    *prometheus.CounterVec
	UsersCreated       prometheus.Counter
	ValidationFailures prometheus.Counter
	ResolveDuration    prometheus.Histogram
}

// NewAuthMetrics creates and registers the auth flow metrics on the default
// registry. Call at most once per process.
func NewAuthMetrics() *AuthMetrics {
	return &AuthMetrics{
		Authentications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shibgate_authentications_total",
			Help: "Authentication attempts by outcome",
		}, []string{"outcome"}),
		UsersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shibgate_users_created_total",
			Help: "Total number of users auto-provisioned on first sight",
		}),
		ValidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shibgate_attribute_validation_failures_total",
			Help: "Requests rejected because a required identity attribute was absent",
		}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shibgate_user_resolve_duration_seconds",
			Help:    "Duration of user resolution (find-or-create plus reconciliation)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// RecordOutcome counts one authentication attempt with the given outcome.
func (m *AuthMetrics) RecordOutcome(outcome Outcome) {
	if m == nil {
		return
	}
	m.Authentications.WithLabelValues(string(outcome)).Inc()
}

// RecordUserCreated counts one auto-provisioned user.
func (m *AuthMetrics) RecordUserCreated() {
	if m == nil {
		return
	}
	m.UsersCreated.Inc()
}

// RecordValidationFailure counts one rejected request.
func (m *AuthMetrics) RecordValidationFailure() {
	if m == nil {
		return
	}
	m.ValidationFailures.Inc()
}

// ObserveResolve records the duration of a resolution that started at start.
func (m *AuthMetrics) ObserveResolve(start time.Time) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}
