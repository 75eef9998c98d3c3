package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	idmodels "bastion/internal/identity/models"
	"bastion/pkg/platform/sentinel"
)

const (
	envBootstrapEmail    = "BASTION_BOOTSTRAP_ADMIN_EMAIL"
	envBootstrapPassword = "BASTION_BOOTSTRAP_ADMIN_PASSWORD"
)

// bootstrapAdmin creates the first admin account from the environment so that
// an empty deployment can be logged into, and enrols it in MFA when it has
// no enrolment yet. The enrolment goes to stderr, never to the log.
func bootstrapAdmin(ctx context.Context, a *app, log *slog.Logger) error {
	email := idmodels.NormalizeEmail(os.Getenv(envBootstrapEmail))
	if email == "" {
		return nil
	}
	password := os.Getenv(envBootstrapPassword)

	u, err := a.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		if password == "" {
			return fmt.Errorf("%s is set without %s", envBootstrapEmail, envBootstrapPassword)
		}
		hash, err := a.authn.HashPassword(password)
		if err != nil {
			return fmt.Errorf("bootstrap admin password: %w", err)
		}
		u = &idmodels.User{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
			Role:         "admin",
			Active:       true,
		}
		if err := a.users.Create(ctx, u); err != nil {
			return fmt.Errorf("create bootstrap admin: %w", err)
		}
		log.Warn("bootstrap admin created", "user_id", u.ID)
	case err != nil:
		return fmt.Errorf("look up bootstrap admin: %w", err)
	}

	if !a.authn.MFARequired(u.Role) {
		return nil
	}
	if _, err := a.mfa.FindByUserID(ctx, u.ID); err == nil {
		return nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("look up bootstrap admin MFA: %w", err)
	}
	enrol, err := a.authn.SetupMFA(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("enrol bootstrap admin MFA: %w", err)
	}
	printEnrolment(os.Stderr, email, enrol.URL, enrol.BackupCodes)
	log.Warn("bootstrap admin enrolled in MFA, enrolment printed to stderr", "user_id", u.ID)
	return nil
}

func printEnrolment(w io.Writer, email, url string, backup []string) {
	fmt.Fprintf(w, "MFA enrolment for %s\n  otpauth: %s\n  backup codes: %s\n",
		email, url, strings.Join(backup, " "))
}
