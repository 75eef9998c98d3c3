package service

import (
	"context"
	"errors"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"bastion/internal/authn/models"
	idmodels "bastion/internal/identity/models"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/secrets"
	"bastion/pkg/platform/sentinel"
)

// TOTPOptions are the parameters every enrolment uses: SHA1, six digits,
// 30 second steps, one step of skew either way.
var TOTPOptions = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// SetupMFA starts a new TOTP enrolment for userID, replacing any previous
// one. The enrolment becomes verified on the first accepted code.
func (s *Service) SetupMFA(ctx context.Context, userID string) (*models.MFAEnrollment, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to load user")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.totpIssuer,
		AccountName: user.Email,
		Period:      TOTPOptions.Period,
		Digits:      TOTPOptions.Digits,
		Algorithm:   TOTPOptions.Algorithm,
		SecretSize:  20,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate MFA secret")
	}

	codes := make([]string, backupCodeCount)
	hashes := make([]string, backupCodeCount)
	for i := range codes {
		if codes[i], err = secrets.GenerateCode(backupCodeLength); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate backup codes")
		}
		if hashes[i], err = secrets.Hash(codes[i], s.bcryptCost); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash backup codes")
		}
	}

	setup := &idmodels.MFASetup{
		UserID:      userID,
		Secret:      key.Secret(),
		BackupCodes: hashes,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.mfa.Save(ctx, setup); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to save MFA setup")
	}
	s.logger.InfoContext(ctx, "MFA enrolment started", "user_id", userID)
	return &models.MFAEnrollment{Secret: key.Secret(), URL: key.URL(), BackupCodes: codes}, nil
}

// VerifyMFA accepts a TOTP code within one step of now, or an unused backup
// code which is then consumed. A user without an enrolment never verifies.
func (s *Service) VerifyMFA(ctx context.Context, userID, code string) (bool, error) {
	setup, err := s.mfa.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to load MFA setup")
	}

	code = strings.TrimSpace(code)
	method := "totp"
	ok := false
	if len(code) == int(TOTPOptions.Digits) {
		ok, _ = totp.ValidateCustom(code, setup.Secret, s.clock.Now(), TOTPOptions)
	} else {
		method = "backup_code"
		ok, err = s.consumeBackupCode(ctx, setup, strings.ToUpper(code))
		if err != nil {
			return false, err
		}
	}
	s.metrics.IncMFACheck(method, ok)
	if !ok {
		return false, nil
	}

	if !setup.Verified {
		if err := s.mfa.MarkVerified(ctx, userID, s.clock.Now()); err != nil {
			s.logger.WarnContext(ctx, "failed to mark MFA verified", "user_id", userID, "error", err)
		} else {
			s.logger.InfoContext(ctx, "MFA enrolment verified", "user_id", userID)
		}
	}
	return true, nil
}

func (s *Service) consumeBackupCode(ctx context.Context, setup *idmodels.MFASetup, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	for _, hash := range setup.BackupCodes {
		if !secrets.Matches(code, hash) {
			continue
		}
		err := s.mfa.ConsumeBackupCode(ctx, setup.UserID, hash)
		switch {
		case err == nil:
			s.logger.InfoContext(ctx, "MFA backup code used", "user_id", setup.UserID, "remaining", len(setup.BackupCodes)-1)
			return true, nil
		case errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrNotFound):
			return false, nil
		default:
			return false, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to consume backup code")
		}
	}
	return false, nil
}
