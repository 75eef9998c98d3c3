package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"bastion/internal/audit/models"
	"bastion/internal/platform/postgres"
	"bastion/pkg/domain"
	"bastion/pkg/platform/sentinel"
	txcontext "bastion/pkg/platform/tx"
)

// PostgresStore persists the chain in the audit_logs table. The UNIQUE
// constraint on chain_index rejects a second record claiming an index.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const logColumns = `id, chain_index, ts, event_type, action, user_id, session_id, resource,
	result, severity, ip_address, user_agent, details, hash, previous_hash, signature,
	archived, archived_at`

func (s *PostgresStore) Append(ctx context.Context, l *models.AuditLog) error {
	details, err := json.Marshal(nonNilDetails(l.Details))
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	query := `INSERT INTO audit_logs (` + logColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err = txcontext.Q(ctx, s.db).ExecContext(ctx, query,
		l.ID, l.ChainIndex, l.Timestamp, string(l.EventType), l.Action, l.UserID, l.SessionID,
		l.Resource, string(l.Result), string(l.Severity), l.IPAddress, l.UserAgent, details,
		l.Hash, l.PreviousHash, l.Signature, l.Archived, nullTime(l.ArchivedAt),
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("append audit log %d: %w", l.ChainIndex, sentinel.ErrConflict)
		}
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

func (s *PostgresStore) Tail(ctx context.Context) (*models.AuditLog, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM audit_logs ORDER BY chain_index DESC LIMIT 1`)
	l, err := scanLog(row)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("audit chain is empty: %w", sentinel.ErrNotFound)
	}
	return l, err
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.AuditLog, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM audit_logs WHERE id = $1`, id)
	return scanLog(row)
}

func (s *PostgresStore) Search(ctx context.Context, q models.Query) ([]*models.AuditLog, error) {
	q = q.Normalize()
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.EventType != "" {
		add("event_type = $%d", string(q.EventType))
	}
	if q.UserID != "" {
		add("user_id = $%d", q.UserID)
	}
	if q.Severity != "" {
		add("severity = $%d", string(q.Severity))
	}
	if q.Result != "" {
		add("result = $%d", string(q.Result))
	}
	if !q.From.IsZero() {
		add("ts >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("ts <= $%d", q.To)
	}

	query := `SELECT ` + logColumns + ` FROM audit_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, q.Limit)
	query += fmt.Sprintf(` ORDER BY ts DESC, chain_index DESC LIMIT $%d`, len(args))

	return s.queryLogs(ctx, query, args...)
}

func (s *PostgresStore) Range(ctx context.Context, from int64, limit int) ([]*models.AuditLog, error) {
	return s.queryLogs(ctx,
		`SELECT `+logColumns+` FROM audit_logs WHERE chain_index >= $1 ORDER BY chain_index ASC LIMIT $2`,
		from, limit)
}

func (s *PostgresStore) Archive(ctx context.Context, sel models.Selector, before, at time.Time) (int64, error) {
	eventTypes := make([]string, len(sel.EventTypes))
	for i, t := range sel.EventTypes {
		eventTypes[i] = string(t)
	}
	query := `UPDATE audit_logs SET archived = TRUE, archived_at = $1
		WHERE archived = FALSE AND ts < $2 AND event_type = ANY($3)`
	args := []any{at, before, pq.Array(eventTypes)}
	if len(sel.Severities) > 0 {
		severities := make([]string, len(sel.Severities))
		for i, sv := range sel.Severities {
			severities[i] = string(sv)
		}
		query += ` AND severity = ANY($4)`
		args = append(args, pq.Array(severities))
	}
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("archive audit logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive audit logs: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) queryLogs(ctx context.Context, query string, args ...any) ([]*models.AuditLog, error) {
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (*models.AuditLog, error) {
	var (
		l                           models.AuditLog
		eventType, result, severity string
		details                     []byte
		archivedAt                  sql.NullTime
	)
	err := row.Scan(&l.ID, &l.ChainIndex, &l.Timestamp, &eventType, &l.Action, &l.UserID,
		&l.SessionID, &l.Resource, &result, &severity, &l.IPAddress, &l.UserAgent, &details,
		&l.Hash, &l.PreviousHash, &l.Signature, &l.Archived, &archivedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit log not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	l.EventType = domain.EventType(eventType)
	l.Result = domain.Result(result)
	l.Severity = domain.Severity(severity)
	l.Timestamp = l.Timestamp.UTC()
	if archivedAt.Valid {
		l.ArchivedAt = archivedAt.Time.UTC()
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &l.Details); err != nil {
			return nil, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	if len(l.Details) == 0 {
		l.Details = nil
	}
	return &l, nil
}

func nonNilDetails(d domain.Details) domain.Details {
	if d == nil {
		return domain.Details{}
	}
	return d
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
