// Package service keeps the control catalog of the enabled standards and
// scores it.
//
// Controls that name checks are re-evaluated on every assessment from live
// Signals gathered across the security layer; the others keep the status
// they were given in the catalog or through SetControlStatus.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"bastion/internal/compliance/catalog"
	"bastion/internal/compliance/metrics"
	"bastion/internal/compliance/models"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/sentinel"
)

const (
	reportPeriod = 90 * 24 * time.Hour
	assessorName = "automated-system"
)

type AssessmentStore interface {
	Save(ctx context.Context, a *models.Assessment) error
	Latest(ctx context.Context) (*models.Assessment, error)
	List(ctx context.Context, limit int) ([]*models.Assessment, error)
}

type ReportStore interface {
	Save(ctx context.Context, r *models.Report) error
	FindByID(ctx context.Context, id string) (*models.Report, error)
	ListByStandard(ctx context.Context, standard string) ([]*models.Report, error)
}

type Stores struct {
	Assessments AssessmentStore
	Reports     ReportStore
}

// Signals is the live state of the security layer that checked controls are
// scored against.
type Signals struct {
	MFAPrivileged      bool `json:"mfa_privileged"`
	EncryptionEnabled  bool `json:"encryption_enabled"`
	AuditSigned        bool `json:"audit_signed"`
	AuditChainIntact   bool `json:"audit_chain_intact"`
	AlertingConfigured bool `json:"alerting_configured"`
}

func (s Signals) passes(check string) bool {
	switch check {
	case catalog.CheckMFAPrivileged:
		return s.MFAPrivileged
	case catalog.CheckEncryptionEnabled:
		return s.EncryptionEnabled
	case catalog.CheckAuditSigned:
		return s.AuditSigned
	case catalog.CheckAuditChainIntact:
		return s.AuditChainIntact
	case catalog.CheckAlertingEnabled:
		return s.AlertingConfigured
	}
	return false
}

// SignalSource gathers Signals. It is called once per assessment.
type SignalSource func(ctx context.Context) (Signals, error)

type Service struct {
	stores    Stores
	standards []catalog.Standard
	signals   SignalSource
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu       sync.RWMutex
	controls []*models.Control
	byID     map[string]*models.Control
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

func WithSignals(src SignalSource) Option {
	return func(s *Service) {
		s.signals = src
	}
}

// New seeds the catalog with the controls of the enabled standards, in the
// order given. An unknown standard is a validation error.
func New(stores Stores, standards []string, opts ...Option) (*Service, error) {
	s := &Service{
		stores: stores,
		clock:  clock.New(),
		logger: slog.New(slog.DiscardHandler),
		byID:   make(map[string]*models.Control),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}

	all, err := catalog.Standards()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "compliance catalog unreadable")
	}
	now := s.clock.Now()
	for _, id := range standards {
		std, ok := all[id]
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown compliance standard %q", id)
		}
		if slices.ContainsFunc(s.standards, func(o catalog.Standard) bool { return o.ID == id }) {
			continue
		}
		s.standards = append(s.standards, std)
		for _, c := range std.Instantiate(now) {
			s.controls = append(s.controls, c)
			s.byID[c.ID] = c
		}
	}
	return s, nil
}

// ValidateCompliance re-evaluates the checked controls, scores the catalog
// per standard and overall, and persists the assessment.
func (s *Service) ValidateCompliance(ctx context.Context) (*models.Assessment, error) {
	now := s.clock.Now()
	s.refresh(ctx, now)

	s.mu.RLock()
	a := &models.Assessment{
		ID:         uuid.NewString(),
		Timestamp:  now,
		Assessor:   assessorName,
		ByStandard: make(map[string]models.Score, len(s.standards)),
	}
	for _, std := range s.standards {
		a.ByStandard[std.ID] = models.Score{}
	}
	for _, c := range s.controls {
		a.Overall.Add(c.Status)
		score := a.ByStandard[c.Standard]
		score.Add(c.Status)
		a.ByStandard[c.Standard] = score

		if isCritical(c) {
			a.CriticalFindings = append(a.CriticalFindings, finding(c))
		}
		if c.Status != models.StatusCompliant && c.Status != models.StatusNotApplicable {
			a.Recommendations = append(a.Recommendations, recommendation(c))
		}
	}
	s.mu.RUnlock()

	a.Overall.Compute()
	for id, score := range a.ByStandard {
		score.Compute()
		a.ByStandard[id] = score
	}
	sortRecommendations(a.Recommendations)

	err := s.stores.Assessments.Save(ctx, a)
	s.metrics.ObserveAssessment(err)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist compliance assessment", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "compliance assessment not saved")
	}

	s.metrics.SetScore("overall", a.Overall.Value)
	for id, score := range a.ByStandard {
		s.metrics.SetScore(id, score.Value)
	}
	s.metrics.SetCriticalFindings(len(a.CriticalFindings))
	s.logger.InfoContext(ctx, "compliance assessment completed",
		"assessment_id", a.ID,
		"overall_score", a.Overall.Value,
		"critical_findings", len(a.CriticalFindings),
		"recommendations", len(a.Recommendations),
	)
	return a, nil
}

// refresh applies the live signals to every checked control. When the
// signals cannot be gathered the previous statuses stand.
func (s *Service) refresh(ctx context.Context, now time.Time) {
	if s.signals == nil {
		return
	}
	sig, err := s.signals(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "compliance signals unavailable, keeping last statuses", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.controls {
		if len(c.Checks) == 0 {
			continue
		}
		passed := 0
		for _, check := range c.Checks {
			if sig.passes(check) {
				passed++
			}
		}
		status := models.StatusPartial
		switch passed {
		case len(c.Checks):
			status = models.StatusCompliant
		case 0:
			status = models.StatusNonCompliant
		}
		if status != c.Status {
			s.logger.InfoContext(ctx, "control status changed",
				"control_id", c.ID, "from", c.Status, "to", status)
		}
		c.Status = status
		c.LastAssessment = now
		c.NextAssessment = now.Add(s.interval(c.Standard))
	}
}

// GenerateComplianceReport scores one standard over the last 90 days and
// persists the report.
func (s *Service) GenerateComplianceReport(ctx context.Context, standard string) (*models.Report, error) {
	if !s.enabled(standard) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "standard %q is not enabled", standard)
	}
	now := s.clock.Now()
	r := &models.Report{
		ID:             uuid.NewString(),
		Standard:       standard,
		GeneratedAt:    now,
		PeriodFrom:     now.Add(-reportPeriod),
		PeriodTo:       now,
		NextAssessment: now.Add(s.interval(standard)),
	}

	s.mu.RLock()
	for _, c := range s.controls {
		if c.Standard != standard {
			continue
		}
		r.Score.Add(c.Status)
		if isCritical(c) {
			r.CriticalFindings = append(r.CriticalFindings, finding(c))
		}
		if c.Status != models.StatusCompliant {
			r.Recommendations = append(r.Recommendations, recommendation(c))
		}
		for _, e := range c.Evidence {
			r.Evidence = append(r.Evidence, models.EvidenceRef{ControlID: c.ID, Evidence: e})
		}
	}
	s.mu.RUnlock()
	r.Score.Compute()
	sortRecommendations(r.Recommendations)

	if err := s.stores.Reports.Save(ctx, r); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist compliance report", "standard", standard, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "compliance report not saved")
	}
	s.metrics.IncReports()
	s.logger.InfoContext(ctx, "compliance report generated",
		"report_id", r.ID, "standard", standard, "score", r.Score.Value,
		"critical_findings", len(r.CriticalFindings))
	return r, nil
}

// LatestAssessment returns the most recent persisted assessment.
func (s *Service) LatestAssessment(ctx context.Context) (*models.Assessment, error) {
	a, err := s.stores.Assessments.Latest(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "no compliance assessment yet")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to load compliance assessment")
	}
	return a, nil
}

// Controls returns copies of the controls of standard, or of every enabled
// standard when standard is empty.
func (s *Service) Controls(standard string) []*models.Control {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Control, 0, len(s.controls))
	for _, c := range s.controls {
		if standard == "" || c.Standard == standard {
			out = append(out, c.Clone())
		}
	}
	return out
}

// SetControlStatus records a manual assessment. Controls decided by checks
// cannot be overridden.
func (s *Service) SetControlStatus(ctx context.Context, controlID string, status models.Status, evidence ...string) error {
	if !status.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[controlID]
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "control %s not found", controlID)
	}
	if len(c.Checks) > 0 {
		return dErrors.Newf(dErrors.CodeValidation, "control %s is assessed automatically", controlID)
	}
	now := s.clock.Now()
	c.Status = status
	c.Evidence = append(c.Evidence, evidence...)
	c.LastAssessment = now
	c.NextAssessment = now.Add(s.interval(c.Standard))
	s.logger.InfoContext(ctx, "control assessed manually", "control_id", controlID, "status", status)
	return nil
}

// Metrics counts the catalog by standard, status and priority.
func (s *Service) Metrics() models.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := models.Metrics{
		TotalControls: len(s.controls),
		ByStandard:    make(map[string]int),
		ByStatus:      make(map[models.Status]int),
		ByPriority:    make(map[models.Priority]int),
	}
	for _, c := range s.controls {
		m.ByStandard[c.Standard]++
		m.ByStatus[c.Status]++
		m.ByPriority[c.Priority]++
	}
	return m
}

// Standards lists the enabled standard IDs in configuration order.
func (s *Service) Standards() []string {
	out := make([]string, len(s.standards))
	for i, std := range s.standards {
		out[i] = std.ID
	}
	return out
}

func (s *Service) enabled(standard string) bool {
	return slices.ContainsFunc(s.standards, func(o catalog.Standard) bool { return o.ID == standard })
}

func (s *Service) interval(standard string) time.Duration {
	for _, std := range s.standards {
		if std.ID == standard {
			return std.ReviewInterval()
		}
	}
	return reportPeriod
}

func isCritical(c *models.Control) bool {
	return c.Status == models.StatusNonCompliant && c.Priority == models.PriorityCritical
}

func finding(c *models.Control) models.Finding {
	f := models.Finding{
		ControlID:   c.ID,
		Title:       c.Title,
		Standard:    c.Standard,
		Requirement: c.Requirement,
	}
	if c.Remediation != nil {
		r := *c.Remediation
		r.Actions = slices.Clone(c.Remediation.Actions)
		f.Remediation = &r
	}
	return f
}

func recommendation(c *models.Control) models.Recommendation {
	return models.Recommendation{
		ControlID:      c.ID,
		Title:          c.Title,
		Priority:       c.Priority,
		Recommendation: c.Recommendation(),
	}
}

var priorityRank = map[models.Priority]int{
	models.PriorityCritical: 0,
	models.PriorityHigh:     1,
	models.PriorityMedium:   2,
	models.PriorityLow:      3,
}

// sortRecommendations orders by priority, most urgent first, then control ID.
func sortRecommendations(recs []models.Recommendation) {
	slices.SortStableFunc(recs, func(a, b models.Recommendation) int {
		if d := priorityRank[a.Priority] - priorityRank[b.Priority]; d != 0 {
			return d
		}
		if a.ControlID < b.ControlID {
			return -1
		}
		if a.ControlID > b.ControlID {
			return 1
		}
		return 0
	})
}
