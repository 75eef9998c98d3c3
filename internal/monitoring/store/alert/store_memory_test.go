package alert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion/internal/monitoring/models"
	"bastion/pkg/domain"
	"bastion/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Create(ctx, &models.SecurityAlert{
			ID:        id,
			Type:      "x",
			Severity:  domain.SeverityHigh,
			Status:    models.AlertOpen,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Details:   domain.Details{"k": "v"},
		}))
	}

	err := s.Create(ctx, &models.SecurityAlert{ID: "a"})
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	got, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	got.Details["k"] = "changed"
	got.Status = models.AlertAcknowledged
	again, _ := s.FindByID(ctx, "a")
	assert.Equal(t, "v", again.Details["k"], "reads are copies")

	require.NoError(t, s.Update(ctx, got))
	open, err := s.ListByStatus(ctx, models.AlertOpen)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "c", open[0].ID, "newest first")

	recent, err := s.ListSince(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	assert.ErrorIs(t, s.Update(ctx, &models.SecurityAlert{ID: "missing"}), sentinel.ErrNotFound)
	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
