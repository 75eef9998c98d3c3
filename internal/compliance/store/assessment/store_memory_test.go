package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion/internal/compliance/models"
	"bastion/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	first := &models.Assessment{ID: "a1", Timestamp: t0, ByStandard: map[string]models.Score{"RGPD": {Total: 1}}}
	second := &models.Assessment{ID: "a2", Timestamp: t0.Add(time.Hour)}
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))
	assert.ErrorIs(t, store.Save(ctx, first), sentinel.ErrConflict)

	t.Run("Latest returns the newest", func(t *testing.T) {
		got, err := store.Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a2", got.ID)
	})

	t.Run("List is newest first and bounded", func(t *testing.T) {
		all, err := store.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "a2", all[0].ID)

		one, err := store.List(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, one, 1)
	})

	t.Run("stored copies are isolated", func(t *testing.T) {
		first.ByStandard["RGPD"] = models.Score{Total: 99}
		all, err := store.List(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, all[1].ByStandard["RGPD"].Total)
	})
}
