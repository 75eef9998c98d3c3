package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bastion/internal/audit/models"
	"bastion/pkg/domain"
	"bastion/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
	t0    time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) record(idx int64, t domain.EventType, sev domain.Severity) *models.AuditLog {
	return &models.AuditLog{
		ID:         "log-" + string(rune('a'+idx)),
		ChainIndex: idx,
		Timestamp:  s.t0.Add(time.Duration(idx) * time.Minute),
		EventType:  t,
		Action:     "act",
		Result:     domain.ResultSuccess,
		Severity:   sev,
		Details:    domain.Details{"k": "v"},
	}
}

func (s *InMemoryStoreSuite) TestAppend() {
	s.Require().NoError(s.store.Append(s.ctx, s.record(0, domain.EventSystem, domain.SeverityLow)))

	s.Run("taken index conflicts", func() {
		dup := s.record(0, domain.EventSystem, domain.SeverityLow)
		dup.ID = "other"
		s.ErrorIs(s.store.Append(s.ctx, dup), sentinel.ErrConflict)
	})

	s.Run("taken id conflicts", func() {
		dup := s.record(1, domain.EventSystem, domain.SeverityLow)
		dup.ID = "log-a"
		s.ErrorIs(s.store.Append(s.ctx, dup), sentinel.ErrConflict)
	})

	s.Run("stored record is a copy", func() {
		rec := s.record(1, domain.EventSystem, domain.SeverityLow)
		s.Require().NoError(s.store.Append(s.ctx, rec))
		rec.Details["k"] = "changed"
		got, err := s.store.FindByID(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal("v", got.Details["k"])
	})
}

func (s *InMemoryStoreSuite) TestTailAndRange() {
	_, err := s.store.Tail(s.ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)

	for _, idx := range []int64{2, 0, 1, 3} {
		s.Require().NoError(s.store.Append(s.ctx, s.record(idx, domain.EventSystem, domain.SeverityLow)))
	}

	tail, err := s.store.Tail(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(3), tail.ChainIndex)

	page, err := s.store.Range(s.ctx, 1, 2)
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.Equal(int64(1), page[0].ChainIndex)
	s.Equal(int64(2), page[1].ChainIndex)

	page, err = s.store.Range(s.ctx, 10, 5)
	s.Require().NoError(err)
	s.Empty(page)
}

func (s *InMemoryStoreSuite) TestSearch() {
	s.Require().NoError(s.store.Append(s.ctx, s.record(0, domain.EventAuthentication, domain.SeverityLow)))
	s.Require().NoError(s.store.Append(s.ctx, s.record(1, domain.EventSecurity, domain.SeverityHigh)))
	s.Require().NoError(s.store.Append(s.ctx, s.record(2, domain.EventAuthentication, domain.SeverityLow)))

	logs, err := s.store.Search(s.ctx, models.Query{EventType: domain.EventAuthentication})
	s.Require().NoError(err)
	s.Require().Len(logs, 2)
	s.Equal(int64(2), logs[0].ChainIndex)

	logs, err = s.store.Search(s.ctx, models.Query{From: s.t0.Add(time.Minute), To: s.t0.Add(time.Minute)})
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(domain.EventSecurity, logs[0].EventType)
}

func (s *InMemoryStoreSuite) TestArchive() {
	s.Require().NoError(s.store.Append(s.ctx, s.record(0, domain.EventSystem, domain.SeverityLow)))
	s.Require().NoError(s.store.Append(s.ctx, s.record(1, domain.EventSystem, domain.SeverityHigh)))
	s.Require().NoError(s.store.Append(s.ctx, s.record(2, domain.EventSystem, domain.SeverityLow)))

	at := s.t0.Add(time.Hour)
	n, err := s.store.Archive(s.ctx, models.Categories[models.CategoryDebug], s.t0.Add(90*time.Second), at)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	logs, err := s.store.Range(s.ctx, 0, 10)
	s.Require().NoError(err)
	s.True(logs[0].Archived)
	s.Equal(at, logs[0].ArchivedAt)
	s.False(logs[1].Archived, "severity outside selector")
	s.False(logs[2].Archived, "newer than cutoff")

	n, err = s.store.Archive(s.ctx, models.Categories[models.CategoryDebug], s.t0.Add(90*time.Second), at)
	s.Require().NoError(err)
	s.Zero(n)
}
