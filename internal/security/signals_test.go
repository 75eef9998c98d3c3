package security

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmodels "bastion/internal/audit/models"
)

func TestSignalSource(t *testing.T) {
	ctx := context.Background()
	mfa := map[string]bool{"admin": true, "analyst": true, "user": false}
	probes := SignalProbes{
		MFARequired: func(role string) bool { return mfa[role] },
		Roles: map[string][]string{
			"admin":   {"*"},
			"analyst": {"missions:*"},
			"user":    {"missions:read"},
		},
		Degraded:       func() bool { return false },
		SigningEnabled: func() bool { return true },
		VerifyChain: func(context.Context) (*auditmodels.IntegrityResult, error) {
			return &auditmodels.IntegrityResult{Valid: true}, nil
		},
		AlertChannels: []string{"log"},
	}

	sig, err := NewSignalSource(probes)(ctx)
	require.NoError(t, err)
	assert.True(t, sig.MFAPrivileged)
	assert.True(t, sig.EncryptionEnabled)
	assert.True(t, sig.AuditSigned)
	assert.True(t, sig.AuditChainIntact)
	assert.True(t, sig.AlertingConfigured)

	t.Run("a privileged role without mfa fails the check", func(t *testing.T) {
		mfa["analyst"] = false
		defer func() { mfa["analyst"] = true }()
		sig, err := NewSignalSource(probes)(ctx)
		require.NoError(t, err)
		assert.False(t, sig.MFAPrivileged)
	})

	t.Run("degraded encryption and no channels", func(t *testing.T) {
		p := probes
		p.Degraded = func() bool { return true }
		p.AlertChannels = nil
		sig, err := NewSignalSource(p)(ctx)
		require.NoError(t, err)
		assert.False(t, sig.EncryptionEnabled)
		assert.False(t, sig.AlertingConfigured)
	})

	t.Run("chain verification error is returned", func(t *testing.T) {
		p := probes
		p.VerifyChain = func(context.Context) (*auditmodels.IntegrityResult, error) {
			return nil, errors.New("store down")
		}
		_, err := NewSignalSource(p)(ctx)
		assert.ErrorContains(t, err, "store down")
	})
}
