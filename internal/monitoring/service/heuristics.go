package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"bastion/internal/monitoring/models"
	"bastion/pkg/domain"
	"bastion/pkg/platform/privacy"
)

// slidingWindow counts hits per key over the trailing span.
type slidingWindow struct {
	span time.Duration
	hits map[string][]time.Time
}

func newSlidingWindow(span time.Duration) *slidingWindow {
	return &slidingWindow{span: span, hits: make(map[string][]time.Time)}
}

// add records a hit at at and returns the hits in (at-span, at].
func (w *slidingWindow) add(key string, at time.Time) int {
	hits := append(w.hits[key], at)
	w.hits[key] = w.trim(hits, at)
	return w.count(key, at)
}

func (w *slidingWindow) count(key string, now time.Time) int {
	cutoff := now.Add(-w.span)
	n := 0
	for _, t := range w.hits[key] {
		if t.After(cutoff) && !t.After(now) {
			n++
		}
	}
	return n
}

func (w *slidingWindow) trim(hits []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-w.span)
	return slices.DeleteFunc(hits, func(t time.Time) bool { return !t.After(cutoff) })
}

// prune drops expired hits and returns how many keys became empty.
func (w *slidingWindow) prune(now time.Time) int {
	removed := 0
	for key, hits := range w.hits {
		hits = w.trim(hits, now)
		if len(hits) == 0 {
			delete(w.hits, key)
			removed++
			continue
		}
		w.hits[key] = hits
	}
	return removed
}

func (w *slidingWindow) keys() int {
	return len(w.hits)
}

// analyze feeds ev into the windows and returns the anomalies it completes.
// The access-time check reads the profile before ev is added to it.
func (s *Service) analyze(ev domain.SecurityEvent) []models.Anomaly {
	var out []models.Anomaly
	failed := ev.Result == domain.ResultFailure || ev.Result == domain.ResultBlocked

	switch {
	case ev.Type == domain.EventAuthentication && failed && ev.IPAddress != "":
		if a, ok := s.hit(ThresholdFailedLogins, ev.IPAddress, ev.Timestamp); ok {
			a.Type = models.AnomalyRepeatedFailedLogins
			a.Severity = domain.SeverityHigh
			a.Confidence = 0.9
			a.Description = fmt.Sprintf("%s failed logins from %s", a.Details["count"], ev.IPAddress)
			out = append(out, s.finish(a, ev))
		}
	case ev.Type == domain.EventAuthorization && ev.Result == domain.ResultBlocked && ev.UserID != "":
		if a, ok := s.hit(ThresholdPrivilegeEscalation, ev.UserID, ev.Timestamp); ok {
			a.Type = models.AnomalyPrivilegeEscalation
			a.Severity = domain.SeverityHigh
			a.Confidence = 0.85
			a.Description = fmt.Sprintf("%s denied authorizations for user %s", a.Details["count"], ev.UserID)
			out = append(out, s.finish(a, ev))
		}
	case ev.Type == domain.EventDataAccess && ev.UserID != "":
		if a, ok := s.hit(ThresholdDataExfiltration, ev.UserID, ev.Timestamp); ok {
			a.Type = models.AnomalyDataExfiltration
			a.Severity = domain.SeverityHigh
			a.Confidence = 0.85
			a.Description = fmt.Sprintf("%s data accesses by user %s", a.Details["count"], ev.UserID)
			out = append(out, s.finish(a, ev))
		}
	case ev.Type == domain.EventSecurity && failed && ev.UserID != "":
		if a, ok := s.hit(ThresholdSuspiciousActivity, ev.UserID, ev.Timestamp); ok {
			a.Type = models.AnomalySuspiciousActivity
			a.Severity = domain.SeverityMedium
			a.Confidence = 0.75
			a.Description = fmt.Sprintf("%s failed security events for user %s", a.Details["count"], ev.UserID)
			out = append(out, s.finish(a, ev))
		}
	}

	if a, ok := s.offHours(ev.UserID, ev.Timestamp); ok {
		out = append(out, s.finish(a, ev))
	}
	return out
}

// hit records one occurrence in the named window and reports whether the
// threshold is now exceeded.
func (s *Service) hit(name, key string, at time.Time) (models.Anomaly, bool) {
	s.windowMu.Lock()
	n := s.windows[name].add(key, at)
	s.windowMu.Unlock()

	t := s.thresholds[name]
	if n <= t.Count {
		return models.Anomaly{}, false
	}
	return models.Anomaly{Details: domain.Details{
		"count":     strconv.Itoa(n),
		"threshold": strconv.Itoa(t.Count),
		"window":    t.Window.String(),
	}}, true
}

func (s *Service) offHours(userID string, at time.Time) (models.Anomaly, bool) {
	hour := at.Hour()
	if userID == "" || !models.IsOffHours(hour) {
		return models.Anomaly{}, false
	}
	s.profileMu.RLock()
	p, ok := s.profiles[userID]
	seen := ok && p.SeenHour(hour)
	s.profileMu.RUnlock()
	if !ok || seen {
		return models.Anomaly{}, false
	}
	return models.Anomaly{
		Type:        models.AnomalyUnusualAccessTime,
		Severity:    domain.SeverityMedium,
		Confidence:  0.7,
		Description: fmt.Sprintf("unusual access at %02d:00 for user %s", hour, userID),
		UserID:      userID,
		Details:     domain.Details{"hour": strconv.Itoa(hour)},
	}, true
}

func (s *Service) finish(a models.Anomaly, ev domain.SecurityEvent) models.Anomaly {
	a.ID = uuid.NewString()
	a.Timestamp = ev.Timestamp
	if a.UserID == "" {
		a.UserID = ev.UserID
	}
	a.IPAddress = ev.IPAddress
	return a
}

// handleAnomaly persists a, and raises an alert when it is strong enough and
// no alert for the same type and subject is still open.
func (s *Service) handleAnomaly(ctx context.Context, a models.Anomaly, ev domain.SecurityEvent) {
	s.metrics.IncAnomaly(a.Type)
	s.RecordMetric("anomalies", 1, map[string]string{"type": a.Type})
	switch a.Type {
	case models.AnomalyDataExfiltration:
		s.RecordMetric("suspicious_access", 1, nil)
	case models.AnomalyPrivilegeEscalation:
		s.RecordMetric("privilege_escalation", 1, nil)
	}

	if err := s.anomalies.Save(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "failed to persist anomaly", "type", a.Type, "error", err)
	}
	s.logger.InfoContext(ctx, "anomaly detected",
		"type", a.Type,
		"severity", a.Severity,
		"confidence", a.Confidence,
		"user_id", a.UserID,
		"ip", privacy.AnonymizeIP(a.IPAddress),
	)

	if !a.ShouldAlert() {
		return
	}
	key := a.Key()
	if !s.reserve(key) {
		return
	}
	alert := &models.SecurityAlert{
		Type:        a.Type,
		Severity:    a.Severity,
		Title:       "Anomaly detected: " + a.Type,
		Description: a.Description,
		Timestamp:   a.Timestamp,
		UserID:      a.UserID,
		SessionID:   ev.SessionID,
		IPAddress:   a.IPAddress,
		Details:     a.Details.With("anomalyId", a.ID),
	}
	if _, err := s.raise(ctx, alert, key, false); err != nil {
		s.release(key)
		s.logger.ErrorContext(ctx, "failed to raise anomaly alert", "type", a.Type, "error", err)
	}
}

// DetectAnomalies evaluates the current windows for the principal in secCtx
// without recording anything.
func (s *Service) DetectAnomalies(_ context.Context, secCtx domain.SecurityContext) []models.Anomaly {
	now := s.clock.Now()
	probe := domain.SecurityEvent{UserID: secCtx.UserID, IPAddress: secCtx.IPAddress, SessionID: secCtx.SessionID, Timestamp: now}

	checks := []struct {
		threshold  string
		key        string
		anomaly    string
		severity   domain.Severity
		confidence float64
	}{
		{ThresholdFailedLogins, secCtx.IPAddress, models.AnomalyRepeatedFailedLogins, domain.SeverityHigh, 0.9},
		{ThresholdPrivilegeEscalation, secCtx.UserID, models.AnomalyPrivilegeEscalation, domain.SeverityHigh, 0.85},
		{ThresholdDataExfiltration, secCtx.UserID, models.AnomalyDataExfiltration, domain.SeverityHigh, 0.85},
		{ThresholdSuspiciousActivity, secCtx.UserID, models.AnomalySuspiciousActivity, domain.SeverityMedium, 0.75},
	}

	var out []models.Anomaly
	s.windowMu.Lock()
	for _, c := range checks {
		if c.key == "" {
			continue
		}
		t := s.thresholds[c.threshold]
		n := s.windows[c.threshold].count(c.key, now)
		if n <= t.Count {
			continue
		}
		out = append(out, s.finish(models.Anomaly{
			Type:        c.anomaly,
			Severity:    c.severity,
			Confidence:  c.confidence,
			Description: fmt.Sprintf("%d %s hits within %s", n, c.threshold, t.Window),
			Details:     domain.Details{"count": strconv.Itoa(n), "threshold": strconv.Itoa(t.Count)},
		}, probe))
	}
	s.windowMu.Unlock()

	if a, ok := s.offHours(secCtx.UserID, now); ok {
		out = append(out, s.finish(a, probe))
	}
	return out
}

// RunAnomalyDetection drops expired window entries and returns how many keys
// are still being tracked.
func (s *Service) RunAnomalyDetection(ctx context.Context) int {
	now := s.clock.Now()
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	removed, tracked := 0, 0
	for _, w := range s.windows {
		removed += w.prune(now)
		tracked += w.keys()
	}
	s.logger.DebugContext(ctx, "anomaly windows pruned", "removed", removed, "tracked", tracked)
	return tracked
}
