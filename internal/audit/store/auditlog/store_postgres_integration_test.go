//go:build integration

package auditlog_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bastion/internal/audit/models"
	"bastion/internal/audit/service"
	"bastion/internal/audit/store/auditlog"
	"bastion/pkg/domain"
	"bastion/pkg/platform/sentinel"
	"bastion/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *auditlog.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = auditlog.NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "audit_logs"))
}

func (s *PostgresStoreSuite) TestChainRoundTrip() {
	ctx := context.Background()
	svc, err := service.New(ctx, s.store, service.WithSigningKey([]byte("0123456789abcdef0123456789abcdef")))
	s.Require().NoError(err)

	for i := range 5 {
		out := svc.LogEvent(ctx, domain.SecurityEvent{
			Type:    domain.EventDataAccess,
			Action:  "read",
			UserID:  fmt.Sprintf("u%d", i),
			Result:  domain.ResultSuccess,
			Details: domain.Details{"field": "email"},
		})
		s.Require().NoError(out.Err)
	}

	result, err := svc.VerifyIntegrity(ctx, "")
	s.Require().NoError(err)
	s.True(result.Valid, "%+v", result.Errors)
	s.Equal(5, result.Checked)

	s.Run("second instance resumes from the stored tail", func() {
		resumed, err := service.New(ctx, s.store)
		s.Require().NoError(err)
		next, _ := resumed.Head()
		s.Equal(int64(5), next)
	})
}

func (s *PostgresStoreSuite) TestDuplicateIndexConflicts() {
	ctx := context.Background()
	log := &models.AuditLog{
		ID: "a", ChainIndex: 0, Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		EventType: domain.EventSystem, Action: "boot", Result: domain.ResultSuccess,
		Severity: domain.SeverityLow, Hash: "h", PreviousHash: "p",
	}
	s.Require().NoError(s.store.Append(ctx, log))

	dup := *log
	dup.ID = "b"
	s.ErrorIs(s.store.Append(ctx, &dup), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestTwoWritersShareOneChain() {
	ctx := context.Background()
	a, err := service.New(ctx, s.store)
	s.Require().NoError(err)
	b, err := service.New(ctx, s.store)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc := a
			if i%2 == 1 {
				svc = b
			}
			svc.LogEvent(ctx, domain.SecurityEvent{Type: domain.EventSystem, Action: "tick", Result: domain.ResultSuccess})
		}()
	}
	wg.Wait()

	result, err := a.VerifyIntegrity(ctx, "")
	s.Require().NoError(err)
	s.True(result.Valid, "%+v", result.Errors)

	logs, err := s.store.Range(ctx, 0, 100)
	s.Require().NoError(err)
	for i, l := range logs {
		s.Equal(int64(i), l.ChainIndex)
	}
}

func (s *PostgresStoreSuite) TestArchive() {
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Microsecond)
	s.Require().NoError(s.store.Append(ctx, &models.AuditLog{
		ID: "old", ChainIndex: 0, Timestamp: old, EventType: domain.EventSystem, Action: "gc",
		Result: domain.ResultSuccess, Severity: domain.SeverityLow, Hash: "h0", PreviousHash: "g",
	}))

	n, err := s.store.Archive(ctx, models.Categories[models.CategoryDebug], time.Now().Add(-24*time.Hour), time.Now())
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	got, err := s.store.FindByID(ctx, "old")
	s.Require().NoError(err)
	s.True(got.Archived)
	s.Equal(old, got.Timestamp.UTC())
}
