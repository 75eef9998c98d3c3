package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"bastion/internal/identity/models"
	"bastion/internal/platform/postgres"
	"bastion/pkg/platform/sentinel"
	txcontext "bastion/pkg/platform/tx"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, password_hash, role, custom_permissions, groups, active,
	last_login_at, last_login_ip, role_assigned_by, role_assigned_at,
	permissions_updated_by, permissions_updated_at`

func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := txcontext.Q(ctx, s.db).ExecContext(ctx, query, userArgs(u)...)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("create user: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, models.NormalizeEmail(email))
	return scanUser(row)
}

func (s *PostgresStore) Update(ctx context.Context, u *models.User) error {
	query := `UPDATE users SET email = $2, password_hash = $3, role = $4, custom_permissions = $5,
		groups = $6, active = $7, last_login_at = $8, last_login_ip = $9, role_assigned_by = $10,
		role_assigned_at = $11, permissions_updated_by = $12, permissions_updated_at = $13
		WHERE id = $1`
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx, query, userArgs(u)...)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("update user: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListByRole(ctx context.Context, role string) ([]*models.User, error) {
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1`, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func userArgs(u *models.User) []any {
	return []any{
		u.ID, models.NormalizeEmail(u.Email), u.PasswordHash, u.Role,
		pq.Array(nonNil(u.CustomPermissions)), pq.Array(nonNil(u.Groups)), u.Active,
		nullTime(u.LastLoginAt), u.LastLoginIP, u.RoleAssignedBy, nullTime(u.RoleAssignedAt),
		u.PermissionsUpdatedBy, nullTime(u.PermissionsUpdatedAt),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                                     models.User
		lastLogin, roleAssigned, permsUpdated sql.NullTime
		customPermissions, groups             pq.StringArray
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &customPermissions, &groups, &u.Active,
		&lastLogin, &u.LastLoginIP, &u.RoleAssignedBy, &roleAssigned,
		&u.PermissionsUpdatedBy, &permsUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CustomPermissions = customPermissions
	u.Groups = groups
	u.LastLoginAt = lastLogin.Time
	u.RoleAssignedAt = roleAssigned.Time
	u.PermissionsUpdatedAt = permsUpdated.Time
	return &u, nil
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
