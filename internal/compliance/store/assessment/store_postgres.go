package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"bastion/internal/compliance/models"
	"bastion/internal/platform/postgres"
	"bastion/pkg/platform/sentinel"
	txcontext "bastion/pkg/platform/tx"
)

// PostgresStore persists assessments in compliance_assessments. The full
// assessment lives in the body column; ts and overall are kept alongside for
// ordering and trend queries.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, a *models.Assessment) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	_, err = txcontext.Q(ctx, s.db).ExecContext(ctx,
		`INSERT INTO compliance_assessments (id, ts, overall, body) VALUES ($1, $2, $3, $4)`,
		a.ID, a.Timestamp, a.Overall.Value, body)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("assessment %s: %w", a.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("save assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context) (*models.Assessment, error) {
	var body []byte
	err := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT body FROM compliance_assessments ORDER BY ts DESC LIMIT 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no assessment: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest assessment: %w", err)
	}
	return decode(body)
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*models.Assessment, error) {
	query := `SELECT body FROM compliance_assessments ORDER BY ts DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var out []*models.Assessment
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		a, err := decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func decode(body []byte) (*models.Assessment, error) {
	var a models.Assessment
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	return &a, nil
}
