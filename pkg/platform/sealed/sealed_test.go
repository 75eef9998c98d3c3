package sealed

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	identity, recipient, err := GenerateIdentity()
	require.NoError(t, err)
	otherIdentity, otherRecipient, err := GenerateIdentity()
	require.NoError(t, err)

	payload := bytes.Repeat([]byte(`{"action":"login","result":"success"}`), 64)

	t.Run("any recipient can open", func(t *testing.T) {
		bundle, err := Seal(payload, []string{recipient, otherRecipient})
		require.NoError(t, err)
		assert.NotContains(t, string(bundle), "login")

		for _, id := range []string{identity, otherIdentity} {
			got, err := Open(bundle, id)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		}
	})

	t.Run("non-recipient cannot open", func(t *testing.T) {
		bundle, err := Seal(payload, []string{recipient})
		require.NoError(t, err)

		_, err = Open(bundle, otherIdentity)
		assert.Error(t, err)
	})

	t.Run("requires a recipient", func(t *testing.T) {
		_, err := Seal(payload, nil)
		assert.ErrorIs(t, err, ErrNoRecipients)
	})

	t.Run("rejects malformed recipient", func(t *testing.T) {
		_, err := Seal(payload, []string{"age1nope"})
		assert.Error(t, err)
	})
}
