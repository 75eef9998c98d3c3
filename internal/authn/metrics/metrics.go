package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Authentication outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeLocked      = "locked"
	OutcomeMFARequired = "mfa_required"
	OutcomeMFAInvalid  = "mfa_invalid"
)

type Metrics struct {
	Attempts        *prometheus.CounterVec
	Lockouts        prometheus.Counter
	SessionsCreated prometheus.Counter
	SessionsEvicted prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	MFAChecks       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_authn_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		Lockouts: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_authn_lockouts_total",
			Help: "Accounts locked after repeated failures",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_authn_sessions_created_total",
			Help: "Sessions minted by successful logins",
		}),
		SessionsEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_authn_sessions_evicted_total",
			Help: "Oldest sessions ended by the concurrent session cap",
		}),
		SessionsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_authn_sessions_ended_total",
			Help: "Sessions ended by reason",
		}, []string{"reason"}),
		MFAChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_authn_mfa_checks_total",
			Help: "MFA verifications by method and result",
		}, []string{"method", "result"}),
	}
}

func (m *Metrics) IncAttempt(outcome string) {
	m.Attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncSessionsEnded(reason string, n int) {
	m.SessionsEnded.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) IncMFACheck(method string, ok bool) {
	result := "valid"
	if !ok {
		result = "invalid"
	}
	m.MFAChecks.WithLabelValues(method, result).Inc()
}
