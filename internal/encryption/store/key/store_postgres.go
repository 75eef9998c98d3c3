package key

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bastion/internal/encryption/models"
	"bastion/internal/platform/postgres"
	"bastion/pkg/platform/sentinel"
	txcontext "bastion/pkg/platform/tx"
)

// PostgresStore persists key metadata in encryption_keys.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const keyColumns = `id, context_id, algorithm, created_at, rotated_at, replaced_by, status,
	usage_count, last_used_at, key_hash`

func (s *PostgresStore) Create(ctx context.Context, k *models.KeyMetadata) error {
	_, err := txcontext.Q(ctx, s.db).ExecContext(ctx,
		`INSERT INTO encryption_keys (`+keyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		k.ID, k.ContextID, k.Algorithm, k.CreatedAt, nullTime(k.RotatedAt), k.ReplacedBy,
		string(k.Status), k.UsageCount, nullTime(k.LastUsedAt), k.KeyHash,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("key %s: %w", k.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create key: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.KeyMetadata, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM encryption_keys WHERE id = $1`, id)
	return scanKey(row)
}

func (s *PostgresStore) FindActive(ctx context.Context, contextID string) (*models.KeyMetadata, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM encryption_keys
		WHERE context_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`,
		contextID, string(models.KeyActive))
	return scanKey(row)
}

func (s *PostgresStore) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	q := txcontext.Q(ctx, s.db)
	res, err := q.ExecContext(ctx,
		`UPDATE encryption_keys SET usage_count = usage_count + 1, last_used_at = $2
		WHERE id = $1 AND status = $3`,
		id, at, string(models.KeyActive))
	if err != nil {
		return fmt.Errorf("increment key usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment key usage: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("key %s is not active: %w", id, sentinel.ErrInvalidState)
}

func (s *PostgresStore) Update(ctx context.Context, k *models.KeyMetadata) error {
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx,
		`UPDATE encryption_keys SET rotated_at = $2, replaced_by = $3, status = $4,
			usage_count = $5, last_used_at = $6
		WHERE id = $1`,
		k.ID, nullTime(k.RotatedAt), k.ReplacedBy, string(k.Status), k.UsageCount, nullTime(k.LastUsedAt))
	if err != nil {
		return fmt.Errorf("update key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update key: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("key %s: %w", k.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.KeyStatus) ([]*models.KeyMetadata, error) {
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx,
		`SELECT `+keyColumns+` FROM encryption_keys WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	var out []*models.KeyMetadata
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[models.KeyStatus]int, error) {
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx,
		`SELECT status, COUNT(*) FROM encryption_keys GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count keys: %w", err)
	}
	defer rows.Close()
	out := make(map[models.KeyStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count keys: %w", err)
		}
		out[models.KeyStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count keys: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*models.KeyMetadata, error) {
	var (
		k                   models.KeyMetadata
		status              string
		rotatedAt, lastUsed sql.NullTime
	)
	err := row.Scan(&k.ID, &k.ContextID, &k.Algorithm, &k.CreatedAt, &rotatedAt, &k.ReplacedBy,
		&status, &k.UsageCount, &lastUsed, &k.KeyHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("key not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan key: %w", err)
	}
	k.Status = models.KeyStatus(status)
	k.CreatedAt = k.CreatedAt.UTC()
	if rotatedAt.Valid {
		k.RotatedAt = rotatedAt.Time.UTC()
	}
	if lastUsed.Valid {
		k.LastUsedAt = lastUsed.Time.UTC()
	}
	return &k, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
