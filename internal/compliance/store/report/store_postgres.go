package report

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

// PostgresStore persists reports in compliance_reports.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, r *models.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = txcontext.Q(ctx, s.db).ExecContext(ctx,
		`INSERT INTO compliance_reports (id, standard, generated_at, body) VALUES ($1, $2, $3, $4)`,
		r.ID, r.Standard, r.GeneratedAt, body)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("report %s: %w", r.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Report, error) {
	var body []byte
	err := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT body FROM compliance_reports WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find report: %w", err)
	}
	return decode(body)
}

func (s *PostgresStore) ListByStandard(ctx context.Context, standard string) ([]*models.Report, error) {
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx,
		`SELECT body FROM compliance_reports WHERE standard = $1 ORDER BY generated_at DESC`, standard)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []*models.Report
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r, err := decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func decode(body []byte) (*models.Report, error) {
	var r models.Report
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
