package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	link := Link{
		Timestamp:    ts,
		EventType:    "authentication",
		Action:       "login",
		UserID:       "u1",
		Result:       "success",
		PreviousHash: "abc",
		ChainIndex:   7,
	}

	for _, algo := range []string{AlgorithmSHA256, AlgorithmBLAKE3} {
		t.Run(algo, func(t *testing.T) {
			h, err := NewHasher(algo)
			require.NoError(t, err)

			first, err := h.Hash(link)
			require.NoError(t, err)
			second, err := h.Hash(link)
			require.NoError(t, err)
			assert.Equal(t, first, second, "deterministic")
			assert.Len(t, first, 64)

			truncated := link
			truncated.Timestamp = ts.Truncate(time.Microsecond)
			same, err := h.Hash(truncated)
			require.NoError(t, err)
			assert.Equal(t, first, same, "sub-microsecond precision is not hashed")

			changed := link
			changed.Result = "failure"
			other, err := h.Hash(changed)
			require.NoError(t, err)
			assert.NotEqual(t, first, other)

			assert.NotEqual(t, h.Genesis(), first)
		})
	}

	t.Run("algorithms differ", func(t *testing.T) {
		a, _ := NewHasher(AlgorithmSHA256)
		b, _ := NewHasher(AlgorithmBLAKE3)
		assert.NotEqual(t, a.Genesis(), b.Genesis())
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		_, err := NewHasher("md5")
		assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	})
}

func TestSigner(t *testing.T) {
	s, err := NewSigner([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	sig := s.Sign("deadbeef")
	assert.True(t, s.Verify("deadbeef", sig))
	assert.False(t, s.Verify("deadbeee", sig))
	assert.False(t, s.Verify("deadbeef", "zz"))

	other, err := NewSigner([]byte("another-key"))
	require.NoError(t, err)
	assert.False(t, other.Verify("deadbeef", sig))

	_, err = NewSigner(nil)
	assert.Error(t, err)
}
