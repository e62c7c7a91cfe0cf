package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertRefreshToken stores the digest of t.Token (or t.TokenHash when the
// raw value is absent) and sets t.ID.
func (s *SQLiteStore) InsertRefreshToken(ctx context.Context, t *RefreshToken) error {
	if t.TokenHash == "" {
		t.TokenHash = HashToken(t.Token)
	}

	result, err := s.q.ExecContext(ctx,
		`INSERT INTO refresh_tokens (principal_id, token_hash, expires_at, created_at, revoked)
		 VALUES (?, ?, ?, ?, ?)`,
		t.PrincipalID, t.TokenHash, formatTime(t.ExpiresAt), formatTime(t.CreatedAt), t.Revoked,
	)
	if err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading refresh token id: %w", err)
	}
	t.ID = id
	return nil
}

// FindRefreshToken looks a token up by the digest of raw.
func (s *SQLiteStore) FindRefreshToken(ctx context.Context, raw string) (*RefreshToken, error) {
	var t RefreshToken
	var expiresAt, createdAt string

	err := s.q.QueryRowContext(ctx,
		`SELECT id, principal_id, token_hash, expires_at, created_at, revoked
		 FROM refresh_tokens WHERE token_hash = ?`, HashToken(raw),
	).Scan(&t.ID, &t.PrincipalID, &t.TokenHash, &expiresAt, &createdAt, &t.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("finding refresh token: %w", err)
	}

	t.ExpiresAt = parseTime(expiresAt)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

// RevokeRefreshToken revokes the token if it exists and is not yet revoked.
func (s *SQLiteStore) RevokeRefreshToken(ctx context.Context, raw string) (bool, error) {
	result, err := s.q.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE token_hash = ? AND revoked = 0", HashToken(raw))
	if err != nil {
		return false, fmt.Errorf("revoking refresh token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

// RevokeAllRefreshTokens revokes every unrevoked token of a principal.
// Used for admin force-logout and, when configured, password changes.
func (s *SQLiteStore) RevokeAllRefreshTokens(ctx context.Context, principalID int64) (int64, error) {
	result, err := s.q.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE principal_id = ? AND revoked = 0", principalID)
	if err != nil {
		return 0, fmt.Errorf("revoking refresh tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}

// InsertSession stores a login session and sets sess.ID.
func (s *SQLiteStore) InsertSession(ctx context.Context, sess *Session) error {
	result, err := s.q.ExecContext(ctx,
		`INSERT INTO sessions (session_id, principal_id, client_ip, user_agent, expires_at, created_at, last_activity)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.PrincipalID, nullString(sess.ClientIP), nullString(sess.UserAgent),
		formatTime(sess.ExpiresAt), formatTime(sess.CreatedAt), formatTime(sess.LastActivity),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading session id: %w", err)
	}
	sess.ID = id
	return nil
}

// ListActiveSessions returns sessions of a principal that have not expired
// at now, newest first.
func (s *SQLiteStore) ListActiveSessions(ctx context.Context, principalID int64, now time.Time) ([]Session, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, session_id, principal_id, client_ip, user_agent, expires_at, created_at, last_activity
		 FROM sessions WHERE principal_id = ? AND expires_at > ?
		 ORDER BY created_at DESC, id DESC`,
		principalID, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var clientIP, userAgent sql.NullString
		var expiresAt, createdAt, lastActivity string
		if err := rows.Scan(&sess.ID, &sess.SessionID, &sess.PrincipalID, &clientIP, &userAgent,
			&expiresAt, &createdAt, &lastActivity); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.ClientIP = clientIP.String
		sess.UserAgent = userAgent.String
		sess.ExpiresAt = parseTime(expiresAt)
		sess.CreatedAt = parseTime(createdAt)
		sess.LastActivity = parseTime(lastActivity)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// DeleteExpired removes refresh tokens and sessions whose expiry is before now.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (tokens, sessions int64, err error) {
	cutoff := formatTime(now)

	err = s.WithinTx(ctx, func(tx Store) error {
		q := tx.(*SQLiteStore).q

		res, err := q.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at < ?", cutoff)
		if err != nil {
			return fmt.Errorf("deleting expired refresh tokens: %w", err)
		}
		tokens, _ = res.RowsAffected() //nolint:errcheck // always succeeds on SQLite

		res, err = q.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", cutoff)
		if err != nil {
			return fmt.Errorf("deleting expired sessions: %w", err)
		}
		sessions, _ = res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return tokens, sessions, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
