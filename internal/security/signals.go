package security

import (
	"context"
	"fmt"
	"slices"
	"strings"

	auditmodels "bastion/internal/audit/models"
	compservice "bastion/internal/compliance/service"
)

// SignalProbes are the read-only views of the security layer that the
// compliance assessment is scored against.
type SignalProbes struct {
	MFARequired    func(role string) bool
	Roles          map[string][]string
	Degraded       func() bool
	SigningEnabled func() bool
	VerifyChain    func(ctx context.Context) (*auditmodels.IntegrityResult, error)
	AlertChannels  []string
}

// NewSignalSource builds the compliance signal source. A role is privileged
// when it holds a wildcard permission.
func NewSignalSource(p SignalProbes) compservice.SignalSource {
	privileged := privilegedRoles(p.Roles)
	return func(ctx context.Context) (compservice.Signals, error) {
		result, err := p.VerifyChain(ctx)
		if err != nil {
			return compservice.Signals{}, fmt.Errorf("verify audit chain: %w", err)
		}
		return compservice.Signals{
			MFAPrivileged:      len(privileged) > 0 && allOf(privileged, p.MFARequired),
			EncryptionEnabled:  !p.Degraded(),
			AuditSigned:        p.SigningEnabled(),
			AuditChainIntact:   result.Valid,
			AlertingConfigured: len(p.AlertChannels) > 0,
		}, nil
	}
}

func privilegedRoles(roles map[string][]string) []string {
	var out []string
	for role, perms := range roles {
		if slices.ContainsFunc(perms, func(p string) bool { return p == "*" || strings.HasSuffix(p, ":*") }) {
			out = append(out, role)
		}
	}
	slices.Sort(out)
	return out
}

func allOf(roles []string, required func(string) bool) bool {
	for _, r := range roles {
		if !required(r) {
			return false
		}
	}
	return true
}
