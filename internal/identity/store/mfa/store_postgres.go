package mfa

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"bastion/internal/identity/models"
	"bastion/pkg/platform/sentinel"
	txcontext "bastion/pkg/platform/tx"
)

// secretContext is the encryption context TOTP secrets are sealed under.
const secretContext = "mfa"

// Sealer protects TOTP secrets at rest.
type Sealer interface {
	EncryptValue(ctx context.Context, v any, contextID string) (string, error)
	DecryptValue(ctx context.Context, envelope, contextID string, out any) error
}

// PostgresStore persists MFA enrolments. Secrets are stored as sealed
// envelopes; backup codes are already hashed by the caller.
type PostgresStore struct {
	db     *sql.DB
	sealer Sealer
}

func NewPostgres(db *sql.DB, sealer Sealer) *PostgresStore {
	return &PostgresStore{db: db, sealer: sealer}
}

// Save creates or replaces the enrolment of setup.UserID.
func (s *PostgresStore) Save(ctx context.Context, setup *models.MFASetup) error {
	sealed, err := s.sealer.EncryptValue(ctx, setup.Secret, secretContext)
	if err != nil {
		return fmt.Errorf("seal mfa secret: %w", err)
	}
	_, err = txcontext.Q(ctx, s.db).ExecContext(ctx, `
		INSERT INTO mfa_setups (user_id, secret, backup_codes, verified, created_at, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			secret = EXCLUDED.secret,
			backup_codes = EXCLUDED.backup_codes,
			verified = EXCLUDED.verified,
			created_at = EXCLUDED.created_at,
			verified_at = EXCLUDED.verified_at`,
		setup.UserID, sealed, pq.Array(nonNil(setup.BackupCodes)), setup.Verified,
		setup.CreatedAt, nullTime(setup.VerifiedAt))
	if err != nil {
		return fmt.Errorf("save mfa setup: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByUserID(ctx context.Context, userID string) (*models.MFASetup, error) {
	var (
		setup      models.MFASetup
		sealed     string
		codes      pq.StringArray
		verifiedAt sql.NullTime
	)
	err := txcontext.Q(ctx, s.db).QueryRowContext(ctx, `
		SELECT user_id, secret, backup_codes, verified, created_at, verified_at
		FROM mfa_setups WHERE user_id = $1`, userID).
		Scan(&setup.UserID, &sealed, &codes, &setup.Verified, &setup.CreatedAt, &verifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mfa setup not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find mfa setup: %w", err)
	}
	if err := s.sealer.DecryptValue(ctx, sealed, secretContext, &setup.Secret); err != nil {
		return nil, fmt.Errorf("open mfa secret: %w", err)
	}
	setup.BackupCodes = codes
	setup.VerifiedAt = verifiedAt.Time
	return &setup, nil
}

// ConsumeBackupCode removes hash in a single statement so that a code can
// only be spent once across instances.
func (s *PostgresStore) ConsumeBackupCode(ctx context.Context, userID, hash string) error {
	q := txcontext.Q(ctx, s.db)
	res, err := q.ExecContext(ctx, `
		UPDATE mfa_setups SET backup_codes = array_remove(backup_codes, $2)
		WHERE user_id = $1 AND $2 = ANY(backup_codes)`, userID, hash)
	if err != nil {
		return fmt.Errorf("consume backup code: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM mfa_setups WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("consume backup code: %w", err)
	}
	if !exists {
		return fmt.Errorf("mfa setup not found: %w", sentinel.ErrNotFound)
	}
	return fmt.Errorf("backup code: %w", sentinel.ErrAlreadyUsed)
}

// MarkVerified flags the enrolment as confirmed, keeping the first time.
func (s *PostgresStore) MarkVerified(ctx context.Context, userID string, at time.Time) error {
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		UPDATE mfa_setups SET verified = TRUE, verified_at = COALESCE(verified_at, $2)
		WHERE user_id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("mark mfa verified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mfa setup not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
