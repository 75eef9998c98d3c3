package service

import (
	"context"
	"strings"
	"time"

	"bastion/internal/monitoring/models"
	"bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
)

const day = 24 * time.Hour

// GetSecurityMetrics builds the dashboard overview from recent alerts and
// the in-memory metric history.
func (s *Service) GetSecurityMetrics(ctx context.Context) (*models.SecurityMetrics, error) {
	now := s.clock.Now()
	last24h := now.Add(-day)

	recent, err := s.alerts.ListSince(ctx, last24h)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to list recent alerts")
	}
	critical, high := 0, 0
	for _, a := range recent {
		switch a.Severity {
		case domain.SeverityCritical:
			critical++
		case domain.SeverityHigh:
			high++
		}
	}

	sum24 := func(name string) float64 { return s.sum(name, last24h, now) }
	return &models.SecurityMetrics{
		GeneratedAt: now,
		Overview: models.Overview{
			ActiveAlerts:   s.openCount(),
			CriticalAlerts: critical,
			HighAlerts:     high,
			TotalEvents24h: s.sumPrefix("events_", last24h, now),
			TotalEvents7d:  s.sumPrefix("events_", now.Add(-7*day), now),
		},
		Authentication: models.Authentication{
			SuccessfulLogins24h: sum24("successful_logins"),
			FailedLogins24h:     sum24("failed_logins"),
			MFAChallenges24h:    sum24("mfa_challenges"),
			AccountLockouts24h:  sum24("account_lockouts"),
		},
		Authorization: models.Authorization{
			PermissionDenied24h:    sum24("permission_denied"),
			PrivilegeEscalation24h: sum24("privilege_escalation"),
		},
		DataAccess: models.DataAccess{
			DataReads24h:        sum24("data_reads"),
			DataWrites24h:       sum24("data_writes"),
			DataExports24h:      sum24("data_exports"),
			SuspiciousAccess24h: sum24("suspicious_access"),
		},
		System: models.System{
			SystemErrors24h:  sum24("system_errors"),
			ConfigChanges24h: sum24("config_changes"),
		},
		Trends: models.Trends{
			Alerts: s.trend(now, "alerts_triggered"),
			Logins: s.trend(now, "successful_logins", "failed_logins"),
			Errors: s.trend(now, "system_errors"),
		},
	}, nil
}

// sum adds the values of name recorded in [from, to].
func (s *Service) sum(name string, from, to time.Time) float64 {
	s.ringMu.RLock()
	r, ok := s.rings[name]
	s.ringMu.RUnlock()
	if !ok {
		return 0
	}
	total := 0.0
	for _, m := range r.Snapshot() {
		if !m.Timestamp.Before(from) && !m.Timestamp.After(to) {
			total += m.Value
		}
	}
	return total
}

func (s *Service) sumPrefix(prefix string, from, to time.Time) float64 {
	s.ringMu.RLock()
	var names []string
	for name := range s.rings {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	s.ringMu.RUnlock()

	total := 0.0
	for _, name := range names {
		total += s.sum(name, from, to)
	}
	return total
}

// trend is the percentage change of the last 24h against the 24h before.
func (s *Service) trend(now time.Time, names ...string) float64 {
	var current, previous float64
	for _, name := range names {
		current += s.sum(name, now.Add(-day), now)
		previous += s.sum(name, now.Add(-2*day), now.Add(-day).Add(-time.Nanosecond))
	}
	switch {
	case previous == 0 && current == 0:
		return 0
	case previous == 0:
		return 100
	}
	return (current - previous) / previous * 100
}
