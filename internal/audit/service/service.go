// Package service implements the tamper-evident audit log.
//
// Records form a hash chain: each carries the hash of its predecessor and is
// optionally HMAC-signed. One process writes the chain; the mutex below is
// held across persist-and-advance so the in-memory tail only moves once the
// store has accepted the record. A store rejecting a chain index as taken
// (another writer got there first) triggers one resync from the store tail
// and a retry.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"bastion/internal/audit/chain"
	"bastion/internal/audit/metrics"
	"bastion/internal/audit/models"
	"bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/sealed"
	"bastion/pkg/platform/sentinel"
	"bastion/pkg/requestcontext"
)

// Store persists audit records.
type Store interface {
	Append(ctx context.Context, log *models.AuditLog) error
	Tail(ctx context.Context) (*models.AuditLog, error)
	FindByID(ctx context.Context, id string) (*models.AuditLog, error)
	Search(ctx context.Context, q models.Query) ([]*models.AuditLog, error)
	Range(ctx context.Context, from int64, limit int) ([]*models.AuditLog, error)
	Archive(ctx context.Context, sel models.Selector, before, at time.Time) (int64, error)
}

const (
	verifyPageSize        = 500
	reportHighSeverityCap = 100

	failedLoginThreshold = 10
	offHoursThreshold    = 50
)

type Service struct {
	store   Store
	hasher  *chain.Hasher
	signer  *chain.Signer
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	hashAlgorithm    string
	signingKey       []byte
	retentionDays    map[models.Category]int
	exportRecipients []string

	mu        sync.Mutex
	lastHash  string
	nextIndex int64
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

// WithSigningKey enables HMAC signatures. An empty key leaves signing off.
func WithSigningKey(key []byte) Option {
	return func(s *Service) {
		s.signingKey = key
	}
}

func WithHashAlgorithm(algorithm string) Option {
	return func(s *Service) {
		s.hashAlgorithm = algorithm
	}
}

// WithRetentionDays sets retention per category name (security, audit, system, debug).
func WithRetentionDays(days map[string]int) Option {
	return func(s *Service) {
		for name, d := range days {
			s.retentionDays[models.Category(name)] = d
		}
	}
}

// WithExportRecipients seals exports to the given age public keys.
func WithExportRecipients(recipients []string) Option {
	return func(s *Service) {
		s.exportRecipients = recipients
	}
}

// New builds the service and resumes the chain from the store tail.
func New(ctx context.Context, store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	svc := &Service{
		store:         store,
		clock:         clock.New(),
		logger:        slog.New(slog.DiscardHandler),
		hashAlgorithm: chain.AlgorithmSHA256,
		retentionDays: make(map[models.Category]int),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.metrics == nil {
		svc.metrics = metrics.New(prometheus.NewRegistry())
	}

	hasher, err := chain.NewHasher(svc.hashAlgorithm)
	if err != nil {
		return nil, err
	}
	svc.hasher = hasher
	if len(svc.signingKey) > 0 {
		signer, err := chain.NewSigner(svc.signingKey)
		if err != nil {
			return nil, err
		}
		svc.signer = signer
	}
	if len(svc.exportRecipients) > 0 {
		if _, err := sealed.ParseRecipients(svc.exportRecipients); err != nil {
			return nil, fmt.Errorf("audit export recipients: %w", err)
		}
	}

	if err := svc.resync(ctx); err != nil {
		return nil, err
	}
	svc.logger.Info("audit chain ready", "next_index", svc.nextIndex, "algorithm", hasher.Algorithm(), "signed", svc.signer != nil)
	return svc, nil
}

// resync reloads the tail from the store. Callers hold mu or own svc exclusively.
func (s *Service) resync(ctx context.Context) error {
	tail, err := s.store.Tail(ctx)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		s.lastHash = s.hasher.Genesis()
		s.nextIndex = 0
	case err != nil:
		return dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "audit store unavailable")
	default:
		s.lastHash = tail.Hash
		s.nextIndex = tail.ChainIndex + 1
	}
	s.metrics.SetChainLength(s.nextIndex)
	return nil
}

// LogEvent appends event to the chain. It never panics and callers may ignore
// the outcome: a failed write is logged and counted, and the tail stays put.
func (s *Service) LogEvent(ctx context.Context, event domain.SecurityEvent) models.Outcome {
	if !event.Type.IsValid() {
		return models.Outcome{Err: dErrors.Newf(dErrors.CodeValidation, "unknown event type %q", event.Type)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.build(ctx, event)
	if err != nil {
		return s.persistFailed(event, err)
	}
	err = s.store.Append(ctx, log)
	if errors.Is(err, sentinel.ErrConflict) {
		s.metrics.IncChainConflicts()
		s.logger.Warn("audit chain index taken, resyncing", "chain_index", log.ChainIndex)
		if err = s.resync(ctx); err == nil {
			if log, err = s.build(ctx, event); err == nil {
				err = s.store.Append(ctx, log)
			}
		}
	}
	if err != nil {
		return s.persistFailed(event, err)
	}

	s.lastHash = log.Hash
	s.nextIndex = log.ChainIndex + 1
	s.metrics.IncLogsWritten(string(log.EventType))
	s.metrics.SetChainLength(s.nextIndex)
	return models.Outcome{Log: log}
}

func (s *Service) persistFailed(event domain.SecurityEvent, err error) models.Outcome {
	s.metrics.IncPersistFailures()
	s.logger.Error("failed to persist audit log",
		"event_type", event.Type,
		"action", event.Action,
		"error", err,
	)
	return models.Outcome{Err: dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "audit log unavailable")}
}

func (s *Service) build(ctx context.Context, event domain.SecurityEvent) (*models.AuditLog, error) {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now()
	}
	ts = ts.UTC().Truncate(time.Microsecond)

	severity := event.Severity
	if severity == "" {
		severity = domain.SeverityLow
	}
	ip := event.IPAddress
	if ip == "" {
		ip = requestcontext.ClientIP(ctx)
	}
	ua := event.UserAgent
	if ua == "" {
		ua = requestcontext.UserAgent(ctx)
	}
	details := event.Details.Redact()
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		details = details.With("requestId", reqID)
	}

	log := &models.AuditLog{
		ID:           uuid.NewString(),
		Timestamp:    ts,
		EventType:    event.Type,
		Action:       event.Action,
		UserID:       event.UserID,
		SessionID:    event.SessionID,
		Resource:     event.Resource,
		Result:       event.Result,
		Severity:     severity,
		IPAddress:    ip,
		UserAgent:    ua,
		Details:      details,
		PreviousHash: s.lastHash,
		ChainIndex:   s.nextIndex,
	}
	hash, err := s.hasher.Hash(linkOf(log))
	if err != nil {
		return nil, err
	}
	log.Hash = hash
	if s.signer != nil {
		log.Signature = s.signer.Sign(hash)
	}
	return log, nil
}

func linkOf(l *models.AuditLog) chain.Link {
	return chain.Link{
		Timestamp:    l.Timestamp,
		EventType:    string(l.EventType),
		Action:       l.Action,
		UserID:       l.UserID,
		Result:       string(l.Result),
		PreviousHash: l.PreviousHash,
		ChainIndex:   l.ChainIndex,
	}
}

// SearchLogs returns records matching q, newest first.
func (s *Service) SearchLogs(ctx context.Context, q models.Query) ([]*models.AuditLog, error) {
	logs, err := s.store.Search(ctx, q.Normalize())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "audit search unavailable")
	}
	return logs, nil
}

// VerifyIntegrity checks one record when logID is set, otherwise replays the
// whole chain from genesis. Replay continues past every break so that the
// result lists all of them.
func (s *Service) VerifyIntegrity(ctx context.Context, logID string) (*models.IntegrityResult, error) {
	result := &models.IntegrityResult{Valid: true}
	if logID != "" {
		if err := s.verifyOne(ctx, logID, result); err != nil {
			return nil, err
		}
	} else if err := s.verifyChain(ctx, result); err != nil {
		return nil, err
	}
	if !result.Valid {
		s.metrics.AddIntegrityFailures(len(result.Errors))
		s.logger.Warn("audit integrity violations found", "count", len(result.Errors))
	}
	return result, nil
}

func (s *Service) verifyOne(ctx context.Context, logID string, result *models.IntegrityResult) error {
	log, err := s.store.FindByID(ctx, logID)
	if errors.Is(err, sentinel.ErrNotFound) {
		result.Fail(-1, logID, models.ReasonNotFound)
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "audit store unavailable")
	}
	s.checkRecord(log, result)
	return nil
}

func (s *Service) verifyChain(ctx context.Context, result *models.IntegrityResult) error {
	// A record whose stored hash was altered is still linked by its
	// recomputed hash, so the break is reported at that record only.
	genesis := s.hasher.Genesis()
	prevStored, prevComputed := genesis, genesis
	expectedIndex := int64(0)
	for {
		page, err := s.store.Range(ctx, expectedIndex, verifyPageSize)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "audit store unavailable")
		}
		for _, log := range page {
			if log.ChainIndex != expectedIndex {
				for missing := expectedIndex; missing < log.ChainIndex; missing++ {
					result.Fail(missing, "", models.ReasonIndexGap)
				}
			}
			if log.PreviousHash != prevStored && log.PreviousHash != prevComputed {
				result.Fail(log.ChainIndex, log.ID, models.ReasonChainBroken)
			}
			prevStored, prevComputed = log.Hash, s.checkRecord(log, result)
			expectedIndex = log.ChainIndex + 1
		}
		if len(page) < verifyPageSize {
			return nil
		}
	}
}

// checkRecord verifies the stored hash and signature of log and returns the
// recomputed hash.
func (s *Service) checkRecord(log *models.AuditLog, result *models.IntegrityResult) string {
	result.Checked++
	hash, err := s.hasher.Hash(linkOf(log))
	if err != nil || hash != log.Hash {
		result.Fail(log.ChainIndex, log.ID, models.ReasonHashMismatch)
	}
	if s.signer != nil && !s.signer.Verify(log.Hash, log.Signature) {
		result.Fail(log.ChainIndex, log.ID, models.ReasonSignatureMismatch)
	}
	return hash
}

// GenerateAuditReport summarizes [from, to]. eventTypes narrows the report
// when non-empty.
func (s *Service) GenerateAuditReport(ctx context.Context, from, to time.Time, eventTypes []domain.EventType) (*models.Report, error) {
	logs, err := s.SearchLogs(ctx, models.Query{From: from, To: to, Limit: models.MaxQueryLimit})
	if err != nil {
		return nil, err
	}

	wanted := make(map[domain.EventType]bool, len(eventTypes))
	for _, t := range eventTypes {
		wanted[t] = true
	}

	report := &models.Report{
		From:        from,
		To:          to,
		GeneratedAt: s.clock.Now().UTC(),
		ByType:      make(map[string]int),
		BySeverity:  make(map[string]int),
		ByResult:    make(map[string]int),
	}
	users := make(map[string]struct{})
	failedLogins := make(map[string]int)
	offHours := 0

	for _, l := range logs {
		if len(wanted) > 0 && !wanted[l.EventType] {
			continue
		}
		report.TotalEvents++
		report.ByType[string(l.EventType)]++
		report.BySeverity[string(l.Severity)]++
		report.ByResult[string(l.Result)]++
		if l.UserID != "" {
			users[l.UserID] = struct{}{}
		}
		if l.Severity.AtLeast(domain.SeverityHigh) && len(report.HighSeverityEvents) < reportHighSeverityCap {
			report.HighSeverityEvents = append(report.HighSeverityEvents, l)
		}
		if l.EventType == domain.EventAuthentication && l.Result == domain.ResultFailure && l.UserID != "" {
			failedLogins[l.UserID]++
		}
		if isOffHours(l.Timestamp.Hour()) {
			offHours++
		}
	}
	report.UniqueUsers = len(users)

	for userID, n := range failedLogins {
		if n > failedLoginThreshold {
			report.Anomalies = append(report.Anomalies, models.ReportAnomaly{
				Type:        "multiple_failed_logins",
				Description: fmt.Sprintf("%d failed logins", n),
				UserID:      userID,
				Count:       n,
			})
		}
	}
	if offHours > offHoursThreshold {
		report.Anomalies = append(report.Anomalies, models.ReportAnomaly{
			Type:        "unusual_hours_access",
			Description: fmt.Sprintf("%d events outside 06:00-22:00", offHours),
			Count:       offHours,
		})
	}

	integrity, err := s.VerifyIntegrity(ctx, "")
	if err != nil {
		return nil, err
	}
	report.Integrity = integrity
	return report, nil
}

// isOffHours reports whether hour falls outside 06:00-22:00. The 22 o'clock
// hour still counts as working time.
func isOffHours(hour int) bool {
	return hour < 6 || hour > 22
}

// SweepRetention archives records past their category's retention period.
// Nothing is deleted; archived records stay in the chain.
func (s *Service) SweepRetention(ctx context.Context) (map[models.Category]int64, error) {
	now := s.clock.Now().UTC()
	archived := make(map[models.Category]int64)
	var errs []error
	for category, days := range s.retentionDays {
		sel, ok := models.Categories[category]
		if !ok || days <= 0 {
			continue
		}
		cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
		n, err := s.store.Archive(ctx, sel, cutoff, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", category, err))
			continue
		}
		if n > 0 {
			archived[category] = n
			s.metrics.AddArchived(string(category), n)
			s.logger.Info("audit records archived", "category", category, "count", n, "cutoff", cutoff)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return archived, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "retention sweep incomplete")
	}
	return archived, nil
}

// Export writes the records matching q as JSON lines. With export recipients
// configured the stream is compressed and sealed instead.
func (s *Service) Export(ctx context.Context, q models.Query, w io.Writer) (int, error) {
	logs, err := s.SearchLogs(ctx, q)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, l := range logs {
		if err := enc.Encode(l); err != nil {
			return 0, fmt.Errorf("encode audit log: %w", err)
		}
	}

	payload := buf.Bytes()
	if len(s.exportRecipients) > 0 {
		payload, err = sealed.Seal(payload, s.exportRecipients)
		if err != nil {
			return 0, fmt.Errorf("seal export: %w", err)
		}
	}
	if _, err := w.Write(payload); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}
	return len(logs), nil
}

// Head returns the next chain index and the hash it will link to.
func (s *Service) Head() (int64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIndex, s.lastHash
}

// SigningEnabled reports whether records are HMAC-signed.
func (s *Service) SigningEnabled() bool {
	return s.signer != nil
}
