package auth

import (
	"context"
	"time"
)

// Store is the data-access contract the auth core depends on.
//
// Lookups return ErrPrincipalNotFound or ErrTokenNotFound when nothing
// matches. InsertPrincipal returns an error wrapping ErrDuplicateIdentity
// when the username or email is already taken.
type Store interface {
	FindPrincipalByID(ctx context.Context, id int64) (*Principal, error)
	FindPrincipalByUsername(ctx context.Context, username string) (*Principal, error)
	FindPrincipalByEmail(ctx context.Context, email string) (*Principal, error)
	ListPrincipals(ctx context.Context, offset, limit int) ([]Principal, error)
	CountPrincipals(ctx context.Context) (int, error)

	// InsertPrincipal stores p and assigns p.ID.
	InsertPrincipal(ctx context.Context, p *Principal) error
	// UpdatePrincipal writes the mutable profile fields (email, names, role,
	// active and superuser flags, updated_at).
	UpdatePrincipal(ctx context.Context, p *Principal) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string, at time.Time) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error

	InsertRefreshToken(ctx context.Context, t *RefreshToken) error
	// FindRefreshToken looks a token up by its raw value.
	FindRefreshToken(ctx context.Context, raw string) (*RefreshToken, error)
	// RevokeRefreshToken revokes an unrevoked token and reports whether one was found.
	RevokeRefreshToken(ctx context.Context, raw string) (bool, error)
	// RevokeAllRefreshTokens revokes every unrevoked token of a principal.
	RevokeAllRefreshTokens(ctx context.Context, principalID int64) (int64, error)

	InsertSession(ctx context.Context, s *Session) error
	ListActiveSessions(ctx context.Context, principalID int64, now time.Time) ([]Session, error)

	// DeleteExpired removes refresh tokens and sessions that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (tokens, sessions int64, err error)

	// WithinTx runs fn against a Store bound to a single transaction.
	// Inside fn only the Store passed to fn may be used.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
