package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// Field limits for principal profiles.
const (
	minUsernameLength = 3
	maxUsernameLength = 50
	maxNameLength     = 50

	// DefaultListLimit is used when a list call passes a non-positive limit.
	DefaultListLimit = 100
	maxListLimit     = 1000
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateUsername checks length and character set.
func ValidateUsername(username string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return fmt.Errorf("%w: username must be %d-%d characters", ErrInvalidInput, minUsernameLength, maxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: username may only contain letters, digits, '.', '_' and '-'", ErrInvalidInput)
	}
	return nil
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, ".") {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return nil
}

func validateName(field, value string) error {
	if value == "" || len(value) > maxNameLength {
		return fmt.Errorf("%w: %s must be 1-%d characters", ErrInvalidInput, field, maxNameLength)
	}
	return nil
}

func validateRole(r Role) error {
	if !r.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, r)
	}
	return nil
}

// NewPrincipal is the input to CreatePrincipal.
type NewPrincipal struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// Validate checks every field and fills in the default role.
func (n *NewPrincipal) Validate() error {
	if n.Role == "" {
		n.Role = DefaultRole
	}
	return errors.Join(
		ValidateUsername(n.Username),
		ValidateEmail(n.Email),
		ValidatePassword(n.Password),
		validateName("first_name", n.FirstName),
		validateName("last_name", n.LastName),
		validateRole(n.Role),
	)
}

// PrincipalPatch is a partial update; nil fields are left untouched.
type PrincipalPatch struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      *Role   `json:"role"`
	IsActive  *bool   `json:"is_active"`
}

// Validate checks the fields that are present.
func (p *PrincipalPatch) Validate() error {
	var errs []error
	if p.Email != nil {
		errs = append(errs, ValidateEmail(*p.Email))
	}
	if p.FirstName != nil {
		errs = append(errs, validateName("first_name", *p.FirstName))
	}
	if p.LastName != nil {
		errs = append(errs, validateName("last_name", *p.LastName))
	}
	if p.Role != nil {
		errs = append(errs, validateRole(*p.Role))
	}
	return errors.Join(errs...)
}

// CreatePrincipal creates an active principal. Requires users:write.
func (s *Service) CreatePrincipal(ctx context.Context, caller *Principal, in NewPrincipal) (*Principal, error) {
	if err := s.authorize(caller, ResourceUsers, ActionWrite); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.FindPrincipalByUsername(ctx, in.Username); err == nil {
		return nil, fmt.Errorf("%w: username already registered", ErrDuplicateIdentity)
	} else if !errors.Is(err, ErrPrincipalNotFound) {
		return nil, err
	}
	if _, err := s.store.FindPrincipalByEmail(ctx, in.Email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrDuplicateIdentity)
	} else if !errors.Is(err, ErrPrincipalNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &Principal{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         in.Role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertPrincipal(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("principal created", "principal_id", p.ID, "role", p.Role, "actor_id", caller.ID)
	s.record(ctx, Event{Type: EventPrincipalCreated, PrincipalID: p.ID, Username: p.Username, Role: p.Role, ActorID: caller.ID})
	return p, nil
}

// ListPrincipals returns a page of principals. Requires users:read.
func (s *Service) ListPrincipals(ctx context.Context, caller *Principal, offset, limit int) ([]Principal, error) {
	if err := s.authorize(caller, ResourceUsers, ActionRead); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.ListPrincipals(ctx, offset, limit)
}

// GetPrincipal returns one principal. Requires users:read.
func (s *Service) GetPrincipal(ctx context.Context, caller *Principal, id int64) (*Principal, error) {
	if err := s.authorize(caller, ResourceUsers, ActionRead); err != nil {
		return nil, err
	}
	return s.store.FindPrincipalByID(ctx, id)
}

// UpdatePrincipal applies a partial update. Requires users:write.
// A caller may not deactivate their own account.
func (s *Service) UpdatePrincipal(ctx context.Context, caller *Principal, id int64, patch PrincipalPatch) (*Principal, error) {
	if err := s.authorize(caller, ResourceUsers, ActionWrite); err != nil {
		return nil, err
	}
	if patch.IsActive != nil && !*patch.IsActive && caller.ID == id {
		return nil, ErrSelfDeletionRejected
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	p, err := s.store.FindPrincipalByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Email != nil && !strings.EqualFold(*patch.Email, p.Email) {
		if _, err := s.store.FindPrincipalByEmail(ctx, *patch.Email); err == nil {
			return nil, fmt.Errorf("%w: email already registered", ErrDuplicateIdentity)
		} else if !errors.Is(err, ErrPrincipalNotFound) {
			return nil, err
		}
	}

	if patch.Email != nil {
		p.Email = *patch.Email
	}
	if patch.FirstName != nil {
		p.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		p.LastName = *patch.LastName
	}
	if patch.Role != nil {
		p.Role = *patch.Role
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	p.UpdatedAt = s.now()

	if err := s.store.UpdatePrincipal(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("principal updated", "principal_id", p.ID, "role", p.Role, "active", p.IsActive, "actor_id", caller.ID)
	s.record(ctx, Event{Type: EventPrincipalUpdated, PrincipalID: p.ID, Username: p.Username, Role: p.Role, ActorID: caller.ID})
	return p, nil
}

// DeactivatePrincipal soft-deletes a principal by clearing its active flag.
// Requires users:write, and rejects the caller's own id regardless of role.
func (s *Service) DeactivatePrincipal(ctx context.Context, caller *Principal, id int64) error {
	if err := s.authorize(caller, ResourceUsers, ActionWrite); err != nil {
		return err
	}
	if caller.ID == id {
		s.logger.Info("self deletion rejected", "principal_id", id)
		return ErrSelfDeletionRejected
	}

	p, err := s.store.FindPrincipalByID(ctx, id)
	if err != nil {
		return err
	}

	p.IsActive = false
	p.UpdatedAt = s.now()
	if err := s.store.UpdatePrincipal(ctx, p); err != nil {
		return err
	}

	s.logger.Info("principal deactivated", "principal_id", id, "actor_id", caller.ID)
	s.record(ctx, Event{Type: EventPrincipalDeactivated, PrincipalID: p.ID, Username: p.Username, Role: p.Role, ActorID: caller.ID})
	return nil
}

// ListSessions returns the unexpired sessions of a principal. Requires users:read.
func (s *Service) ListSessions(ctx context.Context, caller *Principal, id int64) ([]Session, error) {
	if err := s.authorize(caller, ResourceUsers, ActionRead); err != nil {
		return nil, err
	}
	if _, err := s.store.FindPrincipalByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListActiveSessions(ctx, id, s.now())
}

// RevokeSessions revokes every active refresh token of a principal, forcing
// them to log in again once their access token expires. Requires users:write.
func (s *Service) RevokeSessions(ctx context.Context, caller *Principal, id int64) (int64, error) {
	if err := s.authorize(caller, ResourceUsers, ActionWrite); err != nil {
		return 0, err
	}
	p, err := s.store.FindPrincipalByID(ctx, id)
	if err != nil {
		return 0, err
	}

	n, err := s.store.RevokeAllRefreshTokens(ctx, id)
	if err != nil {
		return 0, err
	}

	s.logger.Info("sessions revoked", "principal_id", id, "count", n, "actor_id", caller.ID)
	s.record(ctx, Event{Type: EventSessionsRevoked, PrincipalID: id, Username: p.Username, Role: p.Role, ActorID: caller.ID})
	return n, nil
}
