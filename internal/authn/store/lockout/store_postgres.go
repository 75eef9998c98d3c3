package lockout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bastion/internal/authn/models"
)

// PostgresStore persists lockout counters in PostgreSQL. Lock decisions
// belong to the service; the store only counts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, identifier string) (*models.Lockout, error) {
	query := `
		SELECT identifier, failure_count, last_failure_at, locked_until
		FROM auth_lockouts
		WHERE identifier = $1
	`
	rec, err := scanLockout(s.db.QueryRowContext(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lockout: %w", err)
	}
	return rec, nil
}

// RecordFailure increments the counter in one statement so concurrent
// failures are never lost.
func (s *PostgresStore) RecordFailure(ctx context.Context, identifier string, now time.Time) (*models.Lockout, error) {
	query := `
		INSERT INTO auth_lockouts (identifier, failure_count, last_failure_at, locked_until)
		VALUES ($1, 1, $2, NULL)
		ON CONFLICT (identifier) DO UPDATE SET
			failure_count = auth_lockouts.failure_count + 1,
			last_failure_at = $2
		RETURNING identifier, failure_count, last_failure_at, locked_until
	`
	rec, err := scanLockout(s.db.QueryRowContext(ctx, query, identifier, now))
	if err != nil {
		return nil, fmt.Errorf("record lockout failure: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Lock(ctx context.Context, identifier string, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE auth_lockouts SET locked_until = $2 WHERE identifier = $1`, identifier, until)
	if err != nil {
		return fmt.Errorf("apply lockout: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, identifier string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_lockouts WHERE identifier = $1`, identifier)
	if err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}

type lockoutRow interface {
	Scan(dest ...any) error
}

func scanLockout(row lockoutRow) (*models.Lockout, error) {
	var rec models.Lockout
	var lockedUntil sql.NullTime
	if err := row.Scan(&rec.Identifier, &rec.FailureCount, &rec.LastFailureAt, &lockedUntil); err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		rec.LockedUntil = &lockedUntil.Time
	}
	return &rec, nil
}
