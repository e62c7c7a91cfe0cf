package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

// TokenTypeBearer is the token_type reported with issued access tokens.
const TokenTypeBearer = "bearer"

// Default lifetimes used when ServiceConfig leaves a field at zero.
const (
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultSessionTTL      = 24 * time.Hour
)

// ServiceConfig holds the token and session lifetimes.
type ServiceConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SessionTTL      time.Duration

	// RevokeOnPasswordChange revokes every refresh token of a principal
	// after a successful password change.
	RevokeOnPasswordChange bool
}

// ServiceDeps are the collaborators of a Service. Store, Signer and Hasher
// are required.
type ServiceDeps struct {
	Config ServiceConfig
	Store  Store
	Signer *Signer
	Hasher *Hasher
	Events EventRecorder
	Resets ResetNotifier
	Logger *slog.Logger
	Clock  func() time.Time
}

// Service orchestrates authentication, token lifecycles and permission
// checks. It is safe for concurrent use.
type Service struct {
	cfg    ServiceConfig
	store  Store
	signer *Signer
	hasher *Hasher
	events EventRecorder
	resets ResetNotifier
	logger *slog.Logger
	clock  func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService validates deps and returns a Service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("auth service: store is required")
	}
	if deps.Signer == nil {
		return nil, errors.New("auth service: signer is required")
	}
	if deps.Hasher == nil {
		return nil, errors.New("auth service: hasher is required")
	}

	s := &Service{
		cfg:    deps.Config,
		store:  deps.Store,
		signer: deps.Signer,
		hasher: deps.Hasher,
		events: deps.Events,
		resets: deps.Resets,
		logger: deps.Logger,
		clock:  deps.Clock,
	}
	if s.cfg.AccessTokenTTL <= 0 {
		s.cfg.AccessTokenTTL = deps.Signer.TTL()
	}
	if s.cfg.RefreshTokenTTL <= 0 {
		s.cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if s.cfg.SessionTTL <= 0 {
		s.cfg.SessionTTL = DefaultSessionTTL
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.events == nil {
		s.events = NopRecorder{}
	}
	if s.resets == nil {
		s.resets = &LogResetNotifier{Logger: s.logger}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) record(ctx context.Context, e Event) {
	e.At = s.now()
	s.events.Record(ctx, e)
}

// burnDummyCompare spends one bcrypt comparison so that unknown usernames
// take as long to reject as wrong passwords.
func (s *Service) burnDummyCompare(password string) {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("dashauth-dummy-password")
		if err != nil {
			s.logger.Error("generating dummy hash", "error", err)
			return
		}
		s.dummyHash = h
	})
	s.hasher.Verify(password, s.dummyHash)
}

// Authenticate checks username and password. Every failure returns
// ErrInvalidCredentials; the specific reason is only logged.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	p, err := s.store.FindPrincipalByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrPrincipalNotFound) {
			return nil, fmt.Errorf("looking up principal: %w", err)
		}
		s.burnDummyCompare(password)
		s.logger.Info("authentication failed", "reason", "principal_not_found", "username", username)
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, p.PasswordHash) {
		s.logger.Info("authentication failed", "reason", "password_mismatch", "principal_id", p.ID)
		return nil, ErrInvalidCredentials
	}

	if !p.IsActive {
		s.logger.Info("authentication failed", "reason", "principal_inactive", "principal_id", p.ID)
		return nil, ErrInvalidCredentials
	}

	return p, nil
}

// LoginRequest carries credentials and optional client context.
type LoginRequest struct {
	Username  string
	Password  string
	ClientIP  string
	UserAgent string
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Principal    *Principal `json:"user"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"`
}

// Login authenticates the request and issues an access token and a refresh
// token. The refresh token, the session record and the last-login update
// are written in one transaction.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	p, err := s.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.record(ctx, Event{Type: EventLoginFailed, Username: req.Username, ClientIP: req.ClientIP})
		}
		return nil, err
	}

	now := s.now()

	access, err := s.signer.Issue(Identity{PrincipalID: p.ID, Username: p.Username, Role: p.Role}, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	raw, err := GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	sessionID, err := GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	token := &RefreshToken{
		PrincipalID: p.ID,
		Token:       raw,
		TokenHash:   HashToken(raw),
		ExpiresAt:   now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt:   now,
	}
	session := &Session{
		SessionID:    sessionID,
		PrincipalID:  p.ID,
		ClientIP:     truncate(req.ClientIP, maxClientIPLength),
		UserAgent:    truncate(req.UserAgent, maxUserAgentLength),
		ExpiresAt:    now.Add(s.cfg.SessionTTL),
		CreatedAt:    now,
		LastActivity: now,
	}

	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.InsertRefreshToken(ctx, token); err != nil {
			return err
		}
		if err := tx.InsertSession(ctx, session); err != nil {
			return err
		}
		return tx.TouchLastLogin(ctx, p.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("persisting login: %w", err)
	}
	p.LastLogin = &now

	s.logger.Info("login succeeded", "principal_id", p.ID, "role", p.Role)
	s.record(ctx, Event{Type: EventLogin, PrincipalID: p.ID, Username: p.Username, Role: p.Role, ClientIP: session.ClientIP})

	return &LoginResult{
		Principal:    p,
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// RefreshResult is returned by a successful Refresh.
type RefreshResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Refresh mints a new access token from an active refresh token. The role
// is read from the principal's current record. The refresh token itself
// is not rotated.
func (s *Service) Refresh(ctx context.Context, raw string) (*RefreshResult, error) {
	if raw == "" {
		return nil, ErrTokenNotFound
	}

	token, err := s.store.FindRefreshToken(ctx, raw)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			s.logger.Info("refresh rejected", "reason", "token_not_found")
		}
		return nil, err
	}

	if token.Revoked {
		s.logger.Info("refresh rejected", "reason", "token_revoked", "principal_id", token.PrincipalID)
		return nil, ErrTokenNotFound
	}
	if token.Expired(s.now()) {
		s.logger.Info("refresh rejected", "reason", "token_expired", "principal_id", token.PrincipalID)
		return nil, ErrTokenExpired
	}

	p, err := s.activePrincipal(ctx, token.PrincipalID)
	if err != nil {
		return nil, err
	}

	access, err := s.signer.Issue(Identity{PrincipalID: p.ID, Username: p.Username, Role: p.Role}, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	s.record(ctx, Event{Type: EventRefresh, PrincipalID: p.ID, Username: p.Username, Role: p.Role})

	return &RefreshResult{
		AccessToken: access,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// Logout revokes an active refresh token. A token that is unknown or
// already revoked yields ErrTokenNotFound, so a second logout fails.
func (s *Service) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return ErrTokenNotFound
	}

	token, err := s.store.FindRefreshToken(ctx, raw)
	if err != nil {
		return err
	}

	ok, err := s.store.RevokeRefreshToken(ctx, raw)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Info("logout rejected", "reason", "token_not_active", "principal_id", token.PrincipalID)
		return ErrTokenNotFound
	}

	s.record(ctx, Event{Type: EventLogout, PrincipalID: token.PrincipalID})
	return nil
}

// ResolvePrincipal verifies a bearer access token and loads its principal.
// The principal is always re-read so deactivation applies immediately.
func (s *Service) ResolvePrincipal(ctx context.Context, bearer string) (*Principal, error) {
	claims, err := s.signer.Verify(bearer)
	if err != nil {
		s.logger.Debug("bearer rejected", "reason", "token_invalid")
		return nil, ErrTokenInvalid
	}
	return s.activePrincipal(ctx, claims.UserID)
}

// activePrincipal loads a principal and rejects missing or inactive ones.
func (s *Service) activePrincipal(ctx context.Context, id int64) (*Principal, error) {
	p, err := s.store.FindPrincipalByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			s.logger.Info("principal rejected", "reason", "principal_not_found", "principal_id", id)
		}
		return nil, err
	}
	if !p.IsActive {
		s.logger.Info("principal rejected", "reason", "principal_inactive", "principal_id", id)
		return nil, ErrPrincipalInactive
	}
	return p, nil
}

// CheckPermission reports whether p's role allows action on resource.
func (s *Service) CheckPermission(p *Principal, resource Resource, action Action) bool {
	return p != nil && Allows(p.Role, resource, action)
}

// authorize runs the guard for resource/action against caller.
func (s *Service) authorize(caller *Principal, resource Resource, action Action) error {
	if err := Require(resource, action)(caller); err != nil {
		var id int64
		if caller != nil {
			id = caller.ID
		}
		s.logger.Info("permission denied", "principal_id", id, "resource", resource, "action", action)
		return err
	}
	return nil
}

// ChangePassword replaces p's password after verifying the current one.
// A wrong current password returns ErrInvalidCredentials and changes nothing.
func (s *Service) ChangePassword(ctx context.Context, p *Principal, current, next string) error {
	fresh, err := s.activePrincipal(ctx, p.ID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(current, fresh.PasswordHash) {
		s.logger.Info("password change rejected", "reason", "password_mismatch", "principal_id", p.ID)
		return ErrInvalidCredentials
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.UpdatePasswordHash(ctx, p.ID, hash, now); err != nil {
			return err
		}
		if s.cfg.RevokeOnPasswordChange {
			n, err := tx.RevokeAllRefreshTokens(ctx, p.ID)
			if err != nil {
				return err
			}
			s.logger.Info("refresh tokens revoked after password change", "principal_id", p.ID, "count", n)
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.PasswordHash = hash
	p.UpdatedAt = now
	s.record(ctx, Event{Type: EventPasswordChanged, PrincipalID: p.ID, Username: p.Username, Role: p.Role})
	return nil
}

// PurgeExpired deletes expired refresh tokens and sessions.
func (s *Service) PurgeExpired(ctx context.Context) (tokens, sessions int64, err error) {
	tokens, sessions, err = s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, 0, fmt.Errorf("purging expired records: %w", err)
	}
	if tokens > 0 || sessions > 0 {
		s.logger.Info("purged expired records", "refresh_tokens", tokens, "sessions", sessions)
	}
	return tokens, sessions, nil
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
