package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"

	"bastion/internal/audit/models"
	"bastion/internal/audit/store/auditlog"
	"bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/sealed"
	"bastion/pkg/requestcontext"
)

var signingKey = []byte("0123456789abcdef0123456789abcdef")

type AuditServiceSuite struct {
	suite.Suite
	ctx   context.Context
	clock *clock.Mock
	store *auditlog.InMemoryStore
	svc   *Service
}

func TestAuditServiceSuite(t *testing.T) {
	suite.Run(t, new(AuditServiceSuite))
}

func (s *AuditServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewMock()
	s.clock.Set(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	s.store = auditlog.NewInMemoryStore()
	s.svc = s.newService(s.store)
}

func (s *AuditServiceSuite) newService(store Store, opts ...Option) *Service {
	base := []Option{
		WithClock(s.clock),
		WithSigningKey(signingKey),
		WithRetentionDays(map[string]int{"security": 2555, "audit": 2555, "system": 365, "debug": 30}),
	}
	svc, err := New(s.ctx, store, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func loginEvent(userID string, result domain.Result) domain.SecurityEvent {
	return domain.SecurityEvent{
		Type:     domain.EventAuthentication,
		Action:   "login",
		UserID:   userID,
		Result:   result,
		Severity: domain.SeverityLow,
	}
}

func (s *AuditServiceSuite) logN(svc *Service, n int) {
	for i := 0; i < n; i++ {
		out := svc.LogEvent(s.ctx, loginEvent(fmt.Sprintf("u%d", i), domain.ResultSuccess))
		s.Require().NoError(out.Err)
		s.clock.Add(time.Second)
	}
}

func (s *AuditServiceSuite) TestChainContiguity() {
	s.logN(s.svc, 5)

	logs, err := s.store.Range(s.ctx, 0, 100)
	s.Require().NoError(err)
	s.Require().Len(logs, 5)

	s.Run("first record links to genesis", func() {
		s.Equal(s.svc.hasher.Genesis(), logs[0].PreviousHash)
	})

	s.Run("indices are contiguous and hashes link", func() {
		for i, l := range logs {
			s.Equal(int64(i), l.ChainIndex)
			if i > 0 {
				s.Equal(logs[i-1].Hash, l.PreviousHash)
			}
			s.NotEmpty(l.Signature)
		}
	})

	s.Run("whole chain verifies", func() {
		result, err := s.svc.VerifyIntegrity(s.ctx, "")
		s.Require().NoError(err)
		s.True(result.Valid)
		s.Equal(5, result.Checked)
		s.Empty(result.Errors)
	})

	s.Run("single record verifies", func() {
		result, err := s.svc.VerifyIntegrity(s.ctx, logs[3].ID)
		s.Require().NoError(err)
		s.True(result.Valid)
	})

	s.Run("unknown record is reported", func() {
		result, err := s.svc.VerifyIntegrity(s.ctx, "missing")
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Equal(models.ReasonNotFound, result.Errors[0].Reason)
	})
}

func (s *AuditServiceSuite) TestResumesFromStoreTail() {
	s.logN(s.svc, 3)
	next, lastHash := s.svc.Head()

	restarted := s.newService(s.store)
	gotNext, gotHash := restarted.Head()
	s.Equal(next, gotNext)
	s.Equal(lastHash, gotHash)

	out := restarted.LogEvent(s.ctx, loginEvent("u9", domain.ResultSuccess))
	s.Require().NoError(out.Err)
	s.Equal(int64(3), out.Log.ChainIndex)

	result, err := restarted.VerifyIntegrity(s.ctx, "")
	s.Require().NoError(err)
	s.True(result.Valid)
}

// tamperingStore alters records on read, the way a direct database edit would.
type tamperingStore struct {
	Store
	mutate func(*models.AuditLog) *models.AuditLog
}

func (t *tamperingStore) Range(ctx context.Context, from int64, limit int) ([]*models.AuditLog, error) {
	logs, err := t.Store.Range(ctx, from, limit)
	if err != nil {
		return nil, err
	}
	out := logs[:0]
	for _, l := range logs {
		if m := t.mutate(l); m != nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *AuditServiceSuite) TestTamperDetection() {
	s.logN(s.svc, 6)

	s.Run("modified field reports a hash mismatch at its index", func() {
		svc := s.newService(&tamperingStore{Store: s.store, mutate: func(l *models.AuditLog) *models.AuditLog {
			if l.ChainIndex == 2 {
				l.Action = "logout"
			}
			return l
		}})
		result, err := svc.VerifyIntegrity(s.ctx, "")
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Require().Len(result.Errors, 1)
		s.Equal(int64(2), result.Errors[0].ChainIndex)
		s.Equal(models.ReasonHashMismatch, result.Errors[0].Reason)
	})

	s.Run("rehashed record without the key fails its signature and breaks the next link", func() {
		var forged string
		svc := s.newService(&tamperingStore{Store: s.store, mutate: func(l *models.AuditLog) *models.AuditLog {
			if l.ChainIndex == 1 {
				l.Action = "logout"
				forged, _ = s.svc.hasher.Hash(linkOf(l))
				l.Hash = forged
			}
			return l
		}})
		result, err := svc.VerifyIntegrity(s.ctx, "")
		s.Require().NoError(err)
		s.False(result.Valid)
		reasons := map[int64][]string{}
		for _, e := range result.Errors {
			reasons[e.ChainIndex] = append(reasons[e.ChainIndex], e.Reason)
		}
		s.Equal([]string{models.ReasonSignatureMismatch}, reasons[1])
		s.Equal([]string{models.ReasonChainBroken}, reasons[2])
	})

	s.Run("altered stored hash is reported at that index only", func() {
		svc := s.newService(&tamperingStore{Store: s.store, mutate: func(l *models.AuditLog) *models.AuditLog {
			if l.ChainIndex == 2 {
				l.Hash = "deadbeef"
			}
			return l
		}})
		result, err := svc.VerifyIntegrity(s.ctx, "")
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Equal(6, result.Checked)
		reasons := map[int64][]string{}
		for _, e := range result.Errors {
			reasons[e.ChainIndex] = append(reasons[e.ChainIndex], e.Reason)
		}
		s.Equal(map[int64][]string{
			2: {models.ReasonHashMismatch, models.ReasonSignatureMismatch},
		}, reasons)
	})

	s.Run("deleted record reports a gap and continues", func() {
		svc := s.newService(&tamperingStore{Store: s.store, mutate: func(l *models.AuditLog) *models.AuditLog {
			if l.ChainIndex == 3 {
				return nil
			}
			return l
		}})
		result, err := svc.VerifyIntegrity(s.ctx, "")
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Equal(5, result.Checked)
		s.Equal([]models.IntegrityError{
			{ChainIndex: 3, Reason: models.ReasonIndexGap},
			{ChainIndex: 4, LogID: result.Errors[1].LogID, Reason: models.ReasonChainBroken},
		}, result.Errors)
	})
}

type failingStore struct {
	Store
	fail bool
}

func (f *failingStore) Append(ctx context.Context, l *models.AuditLog) error {
	if f.fail {
		return errors.New("connection refused")
	}
	return f.Store.Append(ctx, l)
}

func (s *AuditServiceSuite) TestPersistenceFailureLeavesTail() {
	store := &failingStore{Store: s.store, fail: true}
	svc := s.newService(store)

	out := svc.LogEvent(s.ctx, loginEvent("u1", domain.ResultSuccess))
	s.Require().Error(out.Err)
	s.True(dErrors.HasCode(out.Err, dErrors.CodePersistenceUnavailable))
	s.Nil(out.Log)

	next, hash := svc.Head()
	s.Equal(int64(0), next)
	s.Equal(svc.hasher.Genesis(), hash)

	store.fail = false
	out = svc.LogEvent(s.ctx, loginEvent("u1", domain.ResultSuccess))
	s.Require().NoError(out.Err)
	s.Equal(int64(0), out.Log.ChainIndex)
}

func (s *AuditServiceSuite) TestSecondWriterResyncsOnConflict() {
	other := s.newService(s.store)

	s.Require().NoError(s.svc.LogEvent(s.ctx, loginEvent("a", domain.ResultSuccess)).Err)
	out := other.LogEvent(s.ctx, loginEvent("b", domain.ResultSuccess))
	s.Require().NoError(out.Err)
	s.Equal(int64(1), out.Log.ChainIndex)

	result, err := s.svc.VerifyIntegrity(s.ctx, "")
	s.Require().NoError(err)
	s.True(result.Valid)
}

func (s *AuditServiceSuite) TestConcurrentWritersKeepChainContiguous() {
	const writers = 40
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.svc.LogEvent(s.ctx, loginEvent(fmt.Sprintf("u%d", i), domain.ResultSuccess))
		}()
	}
	wg.Wait()

	result, err := s.svc.VerifyIntegrity(s.ctx, "")
	s.Require().NoError(err)
	s.True(result.Valid)
	s.Equal(writers, result.Checked)
}

func (s *AuditServiceSuite) TestDetailsAreSanitized() {
	ctx := requestcontext.WithRequestID(s.ctx, "req-1")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "curl/8")
	event := loginEvent("u1", domain.ResultFailure)
	event.Details = domain.Details{"password": "hunter2", "reason": "bad credentials"}

	out := s.svc.LogEvent(ctx, event)
	s.Require().NoError(out.Err)
	s.Equal(domain.RedactedValue, out.Log.Details["password"])
	s.Equal("bad credentials", out.Log.Details["reason"])
	s.Equal("req-1", out.Log.Details["requestId"])
	s.Equal("10.0.0.1", out.Log.IPAddress)
	s.Equal("hunter2", event.Details["password"], "caller's map untouched")
}

func (s *AuditServiceSuite) TestRejectsUnknownEventType() {
	out := s.svc.LogEvent(s.ctx, domain.SecurityEvent{Type: "bogus", Action: "x"})
	s.True(dErrors.HasCode(out.Err, dErrors.CodeValidation))
	next, _ := s.svc.Head()
	s.Equal(int64(0), next)
}

func (s *AuditServiceSuite) TestSearchLogs() {
	s.logN(s.svc, 3)
	s.Require().NoError(s.svc.LogEvent(s.ctx, loginEvent("u1", domain.ResultFailure)).Err)

	s.Run("newest first", func() {
		logs, err := s.svc.SearchLogs(s.ctx, models.Query{})
		s.Require().NoError(err)
		s.Require().Len(logs, 4)
		s.Equal(int64(3), logs[0].ChainIndex)
	})

	s.Run("filters combine", func() {
		logs, err := s.svc.SearchLogs(s.ctx, models.Query{UserID: "u1", Result: domain.ResultFailure})
		s.Require().NoError(err)
		s.Len(logs, 1)
	})

	s.Run("limit applies", func() {
		logs, err := s.svc.SearchLogs(s.ctx, models.Query{Limit: 2})
		s.Require().NoError(err)
		s.Len(logs, 2)
	})
}

func (s *AuditServiceSuite) TestGenerateAuditReport() {
	from := s.clock.Now()
	for i := 0; i < 11; i++ {
		event := loginEvent("mallory", domain.ResultFailure)
		s.Require().NoError(s.svc.LogEvent(s.ctx, event).Err)
	}
	critical := domain.SecurityEvent{Type: domain.EventSecurity, Action: "emergency_lockdown", Result: domain.ResultSuccess, Severity: domain.SeverityCritical}
	s.Require().NoError(s.svc.LogEvent(s.ctx, critical).Err)
	s.Require().NoError(s.svc.LogEvent(s.ctx, loginEvent("alice", domain.ResultSuccess)).Err)

	report, err := s.svc.GenerateAuditReport(s.ctx, from, s.clock.Now().Add(time.Minute), nil)
	s.Require().NoError(err)
	s.Equal(13, report.TotalEvents)
	s.Equal(12, report.ByType["authentication"])
	s.Equal(1, report.BySeverity["critical"])
	s.Equal(2, report.UniqueUsers)
	s.Len(report.HighSeverityEvents, 1)
	s.Require().Len(report.Anomalies, 1)
	s.Equal("multiple_failed_logins", report.Anomalies[0].Type)
	s.Equal("mallory", report.Anomalies[0].UserID)
	s.True(report.Integrity.Valid)

	s.Run("event type filter", func() {
		report, err := s.svc.GenerateAuditReport(s.ctx, from, s.clock.Now().Add(time.Minute), []domain.EventType{domain.EventSecurity})
		s.Require().NoError(err)
		s.Equal(1, report.TotalEvents)
	})
}

func (s *AuditServiceSuite) TestGenerateAuditReportOffHours() {
	logAt := func(hour int) time.Time {
		s.clock.Set(time.Date(2026, 3, 3, hour, 30, 0, 0, time.UTC))
		start := s.clock.Now()
		for i := 0; i < offHoursThreshold+1; i++ {
			s.Require().NoError(s.svc.LogEvent(s.ctx, loginEvent("alice", domain.ResultSuccess)).Err)
		}
		return start
	}
	hasOffHours := func(r *models.Report) bool {
		for _, a := range r.Anomalies {
			if a.Type == "unusual_hours_access" {
				return true
			}
		}
		return false
	}

	s.Run("the 22 o'clock hour is working time", func() {
		from := logAt(22)
		report, err := s.svc.GenerateAuditReport(s.ctx, from, s.clock.Now().Add(time.Minute), nil)
		s.Require().NoError(err)
		s.False(hasOffHours(report))
	})

	s.Run("activity after 23:00 is flagged", func() {
		from := logAt(23)
		report, err := s.svc.GenerateAuditReport(s.ctx, from, s.clock.Now().Add(time.Minute), nil)
		s.Require().NoError(err)
		s.True(hasOffHours(report))
	})
}

func (s *AuditServiceSuite) TestSweepRetention() {
	debug := domain.SecurityEvent{Type: domain.EventSystem, Action: "cache_sweep", Result: domain.ResultSuccess, Severity: domain.SeverityLow}
	system := domain.SecurityEvent{Type: domain.EventSystem, Action: "key_rotation", Result: domain.ResultSuccess, Severity: domain.SeverityMedium}
	s.Require().NoError(s.svc.LogEvent(s.ctx, debug).Err)
	s.Require().NoError(s.svc.LogEvent(s.ctx, system).Err)
	s.Require().NoError(s.svc.LogEvent(s.ctx, loginEvent("u1", domain.ResultSuccess)).Err)

	s.clock.Add(31 * 24 * time.Hour)
	archived, err := s.svc.SweepRetention(s.ctx)
	s.Require().NoError(err)
	s.Equal(map[models.Category]int64{models.CategoryDebug: 1}, archived)

	s.Run("archived records stay verifiable", func() {
		logs, err := s.store.Range(s.ctx, 0, 10)
		s.Require().NoError(err)
		s.True(logs[0].Archived)
		s.False(logs[1].Archived)
		result, err := s.svc.VerifyIntegrity(s.ctx, "")
		s.Require().NoError(err)
		s.True(result.Valid)
	})

	s.Run("second sweep is a no-op", func() {
		archived, err := s.svc.SweepRetention(s.ctx)
		s.Require().NoError(err)
		s.Empty(archived)
	})
}

func (s *AuditServiceSuite) TestExport() {
	s.logN(s.svc, 3)

	s.Run("plain json lines", func() {
		var buf bytes.Buffer
		n, err := s.svc.Export(s.ctx, models.Query{}, &buf)
		s.Require().NoError(err)
		s.Equal(3, n)
		s.Equal(3, strings.Count(buf.String(), "\n"))
	})

	s.Run("sealed to recipients", func() {
		identity, recipient, err := sealed.GenerateIdentity()
		s.Require().NoError(err)
		svc := s.newService(s.store, WithExportRecipients([]string{recipient}))

		var buf bytes.Buffer
		n, err := svc.Export(s.ctx, models.Query{}, &buf)
		s.Require().NoError(err)
		s.Equal(3, n)
		s.NotContains(buf.String(), "login")

		plain, err := sealed.Open(buf.Bytes(), identity)
		s.Require().NoError(err)
		s.Equal(3, strings.Count(string(plain), "\"action\":\"login\""))
	})
}

func (s *AuditServiceSuite) TestBlake3Chain() {
	svc := s.newService(auditlog.NewInMemoryStore(), WithHashAlgorithm("blake3"))
	s.logN(svc, 3)
	result, err := svc.VerifyIntegrity(s.ctx, "")
	s.Require().NoError(err)
	s.True(result.Valid)
}
