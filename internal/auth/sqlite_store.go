package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/dashauth/internal/infrastructure/database"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store on the dashauth SQLite schema.
type SQLiteStore struct {
	db   *database.DB
	q    querier
	inTx bool
}

// NewSQLiteStore returns a Store backed by db. Migrations must already be applied.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db, q: db.DB}
}

// WithinTx runs fn in a transaction. Nested calls reuse the outer transaction.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		return fn(&SQLiteStore{db: s.db, q: tx, inTx: true})
	})
}

const principalColumns = `id, username, email, password_hash, first_name, last_name, role,
	is_active, is_superuser, last_login, created_at, updated_at`

// FindPrincipalByID retrieves a principal by id.
func (s *SQLiteStore) FindPrincipalByID(ctx context.Context, id int64) (*Principal, error) {
	return s.findPrincipal(ctx, "id = ?", id)
}

// FindPrincipalByUsername retrieves a principal by exact username.
func (s *SQLiteStore) FindPrincipalByUsername(ctx context.Context, username string) (*Principal, error) {
	return s.findPrincipal(ctx, "username = ?", username)
}

// FindPrincipalByEmail retrieves a principal by email, ignoring case.
func (s *SQLiteStore) FindPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	return s.findPrincipal(ctx, "email = ? COLLATE NOCASE", email)
}

func (s *SQLiteStore) findPrincipal(ctx context.Context, where string, arg any) (*Principal, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+principalColumns+" FROM principals WHERE "+where, arg) //nolint:gosec // where is a constant from this file
	return scanPrincipal(row)
}

// ListPrincipals returns principals ordered by id.
func (s *SQLiteStore) ListPrincipals(ctx context.Context, offset, limit int) ([]Principal, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+principalColumns+" FROM principals ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing principals: %w", err)
	}
	defer rows.Close()

	principals := []Principal{}
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		principals = append(principals, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}
	return principals, nil
}

// CountPrincipals returns the number of principals, active or not.
func (s *SQLiteStore) CountPrincipals(ctx context.Context) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM principals").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting principals: %w", err)
	}
	return n, nil
}

// InsertPrincipal stores p and sets p.ID.
func (s *SQLiteStore) InsertPrincipal(ctx context.Context, p *Principal) error {
	result, err := s.q.ExecContext(ctx,
		`INSERT INTO principals (username, email, password_hash, first_name, last_name, role,
			is_active, is_superuser, last_login, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Username, p.Email, p.PasswordHash, p.FirstName, p.LastName, string(p.Role),
		p.IsActive, p.IsSuperuser, formatNullableTime(p.LastLogin),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if dup := duplicateField(err); dup != "" {
			return fmt.Errorf("%w: %s already registered", ErrDuplicateIdentity, dup)
		}
		return fmt.Errorf("inserting principal: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading principal id: %w", err)
	}
	p.ID = id
	return nil
}

// UpdatePrincipal writes the mutable profile fields of p.
func (s *SQLiteStore) UpdatePrincipal(ctx context.Context, p *Principal) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE principals SET email = ?, first_name = ?, last_name = ?, role = ?,
			is_active = ?, is_superuser = ?, updated_at = ?
		 WHERE id = ?`,
		p.Email, p.FirstName, p.LastName, string(p.Role),
		p.IsActive, p.IsSuperuser, formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		if dup := duplicateField(err); dup != "" {
			return fmt.Errorf("%w: %s already registered", ErrDuplicateIdentity, dup)
		}
		return fmt.Errorf("updating principal: %w", err)
	}
	return expectRow(result, ErrPrincipalNotFound)
}

// UpdatePasswordHash replaces the stored password hash.
func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, id int64, hash string, at time.Time) error {
	result, err := s.q.ExecContext(ctx,
		"UPDATE principals SET password_hash = ?, updated_at = ? WHERE id = ?",
		hash, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return expectRow(result, ErrPrincipalNotFound)
}

// TouchLastLogin records a successful login.
func (s *SQLiteStore) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	result, err := s.q.ExecContext(ctx,
		"UPDATE principals SET last_login = ? WHERE id = ?", formatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return expectRow(result, ErrPrincipalNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(s rowScanner) (*Principal, error) {
	var p Principal
	var role string
	var lastLogin sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&p.ID, &p.Username, &p.Email, &p.PasswordHash, &p.FirstName, &p.LastName,
		&role, &p.IsActive, &p.IsSuperuser, &lastLogin, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("scanning principal: %w", err)
	}

	p.Role = Role(role)
	if lastLogin.Valid {
		t := parseTime(lastLogin.String)
		p.LastLogin = &t
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// duplicateField returns "username" or "email" when err is a UNIQUE
// violation on that column, and "" otherwise.
func duplicateField(err error) string {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return ""
	}
	msg := sqliteErr.Error()
	switch {
	case strings.Contains(msg, "principals.username"):
		return "username"
	case strings.Contains(msg, "principals.email"):
		return "email"
	default:
		return "identity"
	}
}

func expectRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s) //nolint:errcheck // zero time for unparseable legacy values
	}
	return t
}
