// Package service records security metrics, detects anomalies and drives
// the alert lifecycle.
//
// Nothing here fails the caller's action: event processing logs and counts
// its own problems. Alerts escalate on per-alert timers from the injected
// clock; Shutdown stops every pending timer.
package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"bastion/internal/monitoring/metrics"
	"bastion/internal/monitoring/models"
	"bastion/internal/monitoring/notify"
	"bastion/internal/monitoring/worker"
	"bastion/pkg/domain"
	"bastion/pkg/platform/ring"
)

type AlertStore interface {
	Create(ctx context.Context, a *models.SecurityAlert) error
	Update(ctx context.Context, a *models.SecurityAlert) error
	FindByID(ctx context.Context, id string) (*models.SecurityAlert, error)
	ListSince(ctx context.Context, since time.Time) ([]*models.SecurityAlert, error)
	ListByStatus(ctx context.Context, status models.AlertStatus) ([]*models.SecurityAlert, error)
}

type AnomalyStore interface {
	Save(ctx context.Context, a models.Anomaly) error
}

type IncidentStore interface {
	Create(ctx context.Context, i *models.Incident) error
	Update(ctx context.Context, i *models.Incident) error
}

// Stores groups the collections monitoring writes to.
type Stores struct {
	Alerts    AlertStore
	Anomalies AnomalyStore
	Incidents IncidentStore
	Metrics   worker.Store
}

// Threshold raises an anomaly once more than Count hits land in Window.
type Threshold struct {
	Count  int
	Window time.Duration
}

// Threshold names, matching the configuration keys.
const (
	ThresholdFailedLogins        = "failedLogins"
	ThresholdSuspiciousActivity  = "suspiciousActivity"
	ThresholdDataExfiltration    = "dataExfiltration"
	ThresholdPrivilegeEscalation = "privilegeEscalation"
)

const (
	defaultRingCapacity = 1000
	defaultQueueSize    = 1024
	maxProfileEntries   = 50
)

func defaultThresholds() map[string]Threshold {
	return map[string]Threshold{
		ThresholdFailedLogins:        {Count: 10, Window: 15 * time.Minute},
		ThresholdSuspiciousActivity:  {Count: 5, Window: 10 * time.Minute},
		ThresholdDataExfiltration:    {Count: 100, Window: time.Hour},
		ThresholdPrivilegeEscalation: {Count: 3, Window: 5 * time.Minute},
	}
}

func defaultEscalation() map[domain.Severity]time.Duration {
	return map[domain.Severity]time.Duration{
		domain.SeverityCritical: 5 * time.Minute,
		domain.SeverityHigh:     15 * time.Minute,
		domain.SeverityMedium:   time.Hour,
		domain.SeverityLow:      24 * time.Hour,
	}
}

type trackedAlert struct {
	dedupKey string
	timer    *clock.Timer
}

type Service struct {
	alerts     AlertStore
	anomalies  AnomalyStore
	incidents  IncidentStore
	dispatcher *notify.Dispatcher
	worker     *worker.Worker
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics

	thresholds   map[string]Threshold
	escalation   map[domain.Severity]time.Duration
	ringCapacity int
	queueSize    int

	ringMu sync.RWMutex
	rings  map[string]*ring.Buffer[models.SecurityMetric]

	windowMu sync.Mutex
	windows  map[string]*slidingWindow

	profileMu sync.RWMutex
	profiles  map[string]*models.Profile

	// lifecycleMu serializes read-modify-write of alert records between
	// operators and escalation timers.
	lifecycleMu sync.Mutex

	alertMu  sync.Mutex
	active   map[string]*trackedAlert
	openKeys map[string]string
	closed   bool

	baseCtx context.Context
	cancel  context.CancelFunc
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithThresholds overrides heuristic thresholds by name. Unknown names are
// ignored.
func WithThresholds(thresholds map[string]Threshold) Option {
	return func(s *Service) {
		for name, t := range thresholds {
			if _, known := s.thresholds[name]; known && t.Count > 0 && t.Window > 0 {
				s.thresholds[name] = t
			}
		}
	}
}

// WithEscalationSeconds sets the escalation delay per severity name.
func WithEscalationSeconds(seconds map[string]int) Option {
	return func(s *Service) {
		for sev, n := range seconds {
			if severity := domain.Severity(sev); severity.IsValid() && n > 0 {
				s.escalation[severity] = time.Duration(n) * time.Second
			}
		}
	}
}

// WithRingCapacity bounds the in-memory history kept per metric name.
func WithRingCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.ringCapacity = n
		}
	}
}

// WithQueueSize bounds the metric persistence queue.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

func New(stores Stores, dispatcher *notify.Dispatcher, opts ...Option) (*Service, error) {
	if stores.Alerts == nil || stores.Anomalies == nil || stores.Incidents == nil || stores.Metrics == nil {
		return nil, errors.New("monitoring stores are required")
	}
	if dispatcher == nil {
		return nil, errors.New("notification dispatcher is required")
	}
	svc := &Service{
		alerts:       stores.Alerts,
		anomalies:    stores.Anomalies,
		incidents:    stores.Incidents,
		dispatcher:   dispatcher,
		clock:        clock.New(),
		logger:       slog.New(slog.DiscardHandler),
		thresholds:   defaultThresholds(),
		escalation:   defaultEscalation(),
		ringCapacity: defaultRingCapacity,
		queueSize:    defaultQueueSize,
		rings:        make(map[string]*ring.Buffer[models.SecurityMetric]),
		windows:      make(map[string]*slidingWindow),
		profiles:     make(map[string]*models.Profile),
		active:       make(map[string]*trackedAlert),
		openKeys:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.metrics == nil {
		svc.metrics = metrics.New(prometheus.NewRegistry())
	}
	svc.worker = worker.New(stores.Metrics, svc.queueSize, svc.logger)
	for name, t := range svc.thresholds {
		svc.windows[name] = newSlidingWindow(t.Window)
	}
	svc.baseCtx, svc.cancel = context.WithCancel(context.Background())
	return svc, nil
}

// Run persists recorded metrics until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	return s.worker.Run(ctx)
}

// RecordMetric appends a point to the metric's ring and queues it for
// persistence. A full queue drops the point from persistence only.
func (s *Service) RecordMetric(name string, value float64, tags map[string]string) {
	m := models.SecurityMetric{
		Name:      name,
		Value:     value,
		Tags:      maps.Clone(tags),
		Timestamp: s.clock.Now(),
	}
	s.ringFor(name).Push(m)
	s.metrics.IncMetricQueued(s.worker.Submit(m))
}

func (s *Service) ringFor(name string) *ring.Buffer[models.SecurityMetric] {
	s.ringMu.RLock()
	r, ok := s.rings[name]
	s.ringMu.RUnlock()
	if ok {
		return r
	}
	s.ringMu.Lock()
	defer s.ringMu.Unlock()
	if r, ok = s.rings[name]; !ok {
		r = ring.New[models.SecurityMetric](s.ringCapacity)
		s.rings[name] = r
	}
	return r
}

// ProcessSecurityEvent updates counters, runs the heuristics, handles every
// anomaly found and updates the user's profile.
func (s *Service) ProcessSecurityEvent(ctx context.Context, ev domain.SecurityEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.clock.Now()
	}
	s.metrics.IncEvent(string(ev.Type), string(ev.Result))
	s.recordEventMetrics(ev)

	for _, a := range s.analyze(ev) {
		s.handleAnomaly(ctx, a, ev)
	}
	if ev.UserID != "" {
		s.updateProfile(ev)
	}
}

func (s *Service) recordEventMetrics(ev domain.SecurityEvent) {
	s.RecordMetric("events_"+string(ev.Type), 1, map[string]string{
		"action":   ev.Action,
		"result":   string(ev.Result),
		"severity": string(ev.Severity),
	})

	switch ev.Type {
	case domain.EventAuthentication:
		if ev.Result == domain.ResultSuccess {
			s.RecordMetric("successful_logins", 1, nil)
		} else {
			s.RecordMetric("failed_logins", 1, nil)
		}
		switch ev.Action {
		case "mfa_challenge":
			s.RecordMetric("mfa_challenges", 1, nil)
		case "account_locked":
			s.RecordMetric("account_lockouts", 1, nil)
		}
	case domain.EventAuthorization:
		if ev.Result == domain.ResultBlocked {
			s.RecordMetric("permission_denied", 1, nil)
		}
	case domain.EventDataAccess:
		s.RecordMetric(dataMetric(ev.Action), 1, nil)
	case domain.EventSecurity:
		s.RecordMetric("security_events", 1, map[string]string{
			"action":   ev.Action,
			"severity": string(ev.Severity),
		})
	case domain.EventSystem:
		if ev.Result == domain.ResultFailure {
			s.RecordMetric("system_errors", 1, nil)
		}
		if ev.Action == "config_change" {
			s.RecordMetric("config_changes", 1, nil)
		}
	}
}

func dataMetric(action string) string {
	switch action {
	case "read", "list", "view":
		return "data_reads"
	case "create", "update", "delete", "write":
		return "data_writes"
	case "export", "download":
		return "data_exports"
	}
	return "data_" + action
}

// CollectMetrics records the periodic system health points.
func (s *Service) CollectMetrics(_ context.Context) {
	s.RecordMetric("system_health", 1, nil)
	s.RecordMetric("goroutines", float64(runtime.NumGoroutine()), nil)
	s.RecordMetric("open_alerts", float64(s.openCount()), nil)
}

// Profile returns a copy of the learned profile of userID.
func (s *Service) Profile(userID string) (*models.Profile, bool) {
	s.profileMu.RLock()
	defer s.profileMu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Shutdown cancels every pending escalation. Later escalations and alerts
// are not scheduled.
func (s *Service) Shutdown() {
	s.alertMu.Lock()
	defer s.alertMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, t := range s.active {
		if t.timer != nil {
			t.timer.Stop()
		}
		delete(s.active, id)
	}
	s.cancel()
}

// PendingEscalations counts alerts with an armed escalation timer.
func (s *Service) PendingEscalations() int {
	s.alertMu.Lock()
	defer s.alertMu.Unlock()
	n := 0
	for _, t := range s.active {
		if t.timer != nil {
			n++
		}
	}
	return n
}

// MetricsDropped reports how many points the persistence queue refused.
func (s *Service) MetricsDropped() int64 {
	return s.worker.Dropped()
}
