package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"bastion/internal/monitoring/models"
	"bastion/internal/monitoring/notify"
	"bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/sentinel"
)

// TriggerAlert persists alert as a new open alert, notifies the channels and
// arms its escalation timer.
func (s *Service) TriggerAlert(ctx context.Context, alert *models.SecurityAlert) (*models.SecurityAlert, error) {
	return s.raise(ctx, alert, "", false)
}

// TriggerEmergencyAlert raises a critical emergency alert and broadcasts it
// to every channel, bypassing rate limits.
func (s *Service) TriggerEmergencyAlert(ctx context.Context, reason string) (*models.SecurityAlert, error) {
	return s.raise(ctx, &models.SecurityAlert{
		Type:        models.AlertEmergency,
		Severity:    domain.SeverityCritical,
		Title:       "Emergency lockdown",
		Description: "emergency lockdown activated: " + reason,
		Details:     domain.Details{"reason": reason, "automatic": "true"},
	}, "", true)
}

func (s *Service) raise(ctx context.Context, alert *models.SecurityAlert, dedupKey string, broadcast bool) (*models.SecurityAlert, error) {
	if alert == nil || alert.Type == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "alert type is required")
	}
	if !alert.Severity.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown alert severity %q", alert.Severity)
	}

	now := s.clock.Now()
	delay := s.escalationDelay(alert.Severity)
	a := alert.Clone()
	a.ID = uuid.NewString()
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}
	a.Status = models.AlertOpen
	a.EscalationLevel = 0
	a.EscalatedAt = time.Time{}
	a.NextEscalationAt = now.Add(delay)

	if err := s.alerts.Create(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist alert", "type", a.Type, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to persist alert")
	}

	s.alertMu.Lock()
	if !s.closed {
		id := a.ID
		s.active[id] = &trackedAlert{
			dedupKey: dedupKey,
			timer:    s.clock.AfterFunc(delay, func() { s.escalate(id) }),
		}
		if dedupKey != "" {
			s.openKeys[dedupKey] = id
		}
	}
	s.alertMu.Unlock()

	s.metrics.IncAlert(a.Type, string(a.Severity))
	s.metrics.OpenAlerts.Inc()
	s.RecordMetric("alerts_triggered", 1, map[string]string{"type": a.Type, "severity": string(a.Severity)})

	var report notify.Report
	if broadcast {
		report = s.dispatcher.Broadcast(ctx, notify.ForAlert(a, notify.KindEmergency, now))
	} else {
		report = s.dispatcher.Notify(ctx, notify.ForAlert(a, notify.KindAlert, now))
	}
	s.logger.WarnContext(ctx, "security alert raised",
		"alert_id", a.ID,
		"type", a.Type,
		"severity", a.Severity,
		"user_id", a.UserID,
		"channels", deliveredTo(report),
	)
	return a.Clone(), nil
}

// reserve claims the dedup key for a new alert. It fails while an alert for
// the key is open or being raised.
func (s *Service) reserve(key string) bool {
	s.alertMu.Lock()
	defer s.alertMu.Unlock()
	if s.closed {
		return false
	}
	if _, taken := s.openKeys[key]; taken {
		return false
	}
	s.openKeys[key] = ""
	return true
}

func (s *Service) release(key string) {
	s.alertMu.Lock()
	defer s.alertMu.Unlock()
	delete(s.openKeys, key)
}

// forget stops tracking an alert that left the open state.
func (s *Service) forget(id string) {
	s.alertMu.Lock()
	defer s.alertMu.Unlock()
	t, ok := s.active[id]
	if !ok {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.dedupKey != "" && s.openKeys[t.dedupKey] == id {
		delete(s.openKeys, t.dedupKey)
	}
	delete(s.active, id)
	s.metrics.OpenAlerts.Dec()
}

func (s *Service) openCount() int {
	s.alertMu.Lock()
	defer s.alertMu.Unlock()
	return len(s.active)
}

func (s *Service) escalationDelay(sev domain.Severity) time.Duration {
	if d, ok := s.escalation[sev]; ok {
		return d
	}
	return s.escalation[domain.SeverityLow]
}

// escalate runs on the alert's timer. An alert that is still open moves one
// level up, is re-notified with the broader audience and re-armed; its
// status never changes here.
func (s *Service) escalate(id string) {
	s.alertMu.Lock()
	_, tracked := s.active[id]
	closed := s.closed
	s.alertMu.Unlock()
	if !tracked || closed {
		return
	}
	ctx := s.baseCtx

	s.lifecycleMu.Lock()
	a, err := s.alerts.FindByID(ctx, id)
	if err != nil {
		s.lifecycleMu.Unlock()
		s.logger.ErrorContext(ctx, "escalation could not load alert", "alert_id", id, "error", err)
		return
	}
	if a.Status != models.AlertOpen {
		s.lifecycleMu.Unlock()
		s.forget(id)
		return
	}
	now := s.clock.Now()
	delay := s.escalationDelay(a.Severity)
	a.EscalationLevel++
	a.EscalatedAt = now
	a.NextEscalationAt = now.Add(delay)
	if err := s.alerts.Update(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist escalation", "alert_id", id, "error", err)
	}
	s.lifecycleMu.Unlock()

	s.alertMu.Lock()
	if t, ok := s.active[id]; ok && !s.closed {
		t.timer = s.clock.AfterFunc(delay, func() { s.escalate(id) })
	}
	s.alertMu.Unlock()

	s.metrics.Escalations.Inc()
	report := s.dispatcher.Notify(ctx, notify.ForAlert(a, notify.KindEscalation, now))
	s.logger.WarnContext(ctx, "security alert escalated",
		"alert_id", id,
		"severity", a.Severity,
		"level", a.EscalationLevel,
		"channels", deliveredTo(report),
	)
}

// Acknowledge moves an open alert to acknowledged.
func (s *Service) Acknowledge(ctx context.Context, alertID, by string) (*models.SecurityAlert, error) {
	return s.transition(ctx, alertID, by, models.AlertAcknowledged)
}

// Resolve closes an acknowledged alert.
func (s *Service) Resolve(ctx context.Context, alertID, by string) (*models.SecurityAlert, error) {
	return s.transition(ctx, alertID, by, models.AlertResolved)
}

// MarkFalsePositive closes an open or acknowledged alert as a false positive.
func (s *Service) MarkFalsePositive(ctx context.Context, alertID, by string) (*models.SecurityAlert, error) {
	return s.transition(ctx, alertID, by, models.AlertFalsePositive)
}

func (s *Service) transition(ctx context.Context, alertID, by string, to models.AlertStatus) (*models.SecurityAlert, error) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	a, err := s.alerts.FindByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "alert not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to load alert")
	}
	if !a.Status.CanTransition(to) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "alert cannot move from %s to %s", a.Status, to)
	}

	now := s.clock.Now()
	from := a.Status
	a.Status = to
	if to == models.AlertAcknowledged {
		a.AcknowledgedBy, a.AcknowledgedAt = by, now
	} else {
		a.ResolvedBy, a.ResolvedAt = by, now
	}
	if from == models.AlertOpen {
		a.NextEscalationAt = time.Time{}
	}
	if err := s.alerts.Update(ctx, a); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to update alert")
	}
	if from == models.AlertOpen {
		s.forget(alertID)
	}

	s.metrics.IncTransition(string(to))
	s.logger.InfoContext(ctx, "security alert updated", "alert_id", alertID, "from", from, "to", to, "by", by)
	return a.Clone(), nil
}

// OpenAlerts lists alerts still open, newest first.
func (s *Service) OpenAlerts(ctx context.Context) ([]*models.SecurityAlert, error) {
	alerts, err := s.alerts.ListByStatus(ctx, models.AlertOpen)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to list alerts")
	}
	return alerts, nil
}

// TriggerIncidentResponse declares a critical incident and synchronously
// notifies every channel.
func (s *Service) TriggerIncidentResponse(ctx context.Context, incidentType string, details domain.Details) (*models.Incident, error) {
	if incidentType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "incident type is required")
	}
	now := s.clock.Now()
	inc := &models.Incident{
		ID:        "INC_" + uuid.NewString(),
		Type:      incidentType,
		Severity:  domain.SeverityCritical,
		Status:    models.IncidentOpen,
		CreatedAt: now,
		Details:   details.Redact(),
		Timeline: []models.TimelineEntry{{
			Timestamp: now,
			Action:    "incident_created",
			Details:   "security incident declared",
		}},
	}
	if err := s.incidents.Create(ctx, inc); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist incident", "type", incidentType, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to persist incident")
	}
	s.metrics.Incidents.Inc()

	report := s.dispatcher.Broadcast(ctx, notify.ForIncident(inc, now))
	inc.Timeline = append(inc.Timeline, models.TimelineEntry{
		Timestamp: s.clock.Now(),
		Action:    "responders_notified",
		Details:   strings.Join(deliveredTo(report), ","),
	})
	if err := s.incidents.Update(ctx, inc); err != nil {
		s.logger.WarnContext(ctx, "failed to record incident notification", "incident_id", inc.ID, "error", err)
	}

	s.logger.ErrorContext(ctx, "security incident declared", "incident_id", inc.ID, "type", incidentType)
	return inc.Clone(), nil
}

func deliveredTo(report notify.Report) []string {
	var names []string
	for _, name := range slices.Sorted(maps.Keys(report)) {
		if report[name] == notify.OutcomeDelivered {
			names = append(names, name)
		}
	}
	return names
}
