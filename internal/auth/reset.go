package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ResetNotifier delivers password reset instructions to a principal.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, p *Principal) error
}

// LogResetNotifier only logs reset requests. No mail is sent.
type LogResetNotifier struct {
	Logger *slog.Logger
}

// NotifyPasswordReset implements ResetNotifier.
func (n *LogResetNotifier) NotifyPasswordReset(_ context.Context, p *Principal) error {
	n.Logger.Info("password reset requested", "principal_id", p.ID)
	return nil
}

// RequestPasswordReset hands an existing, active principal with this email
// to the ResetNotifier. It always returns nil so callers cannot probe which
// addresses are registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	p, err := s.store.FindPrincipalByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrPrincipalNotFound) {
			s.logger.Error("password reset lookup failed", "error", err)
		}
		return nil
	}
	if !p.IsActive {
		return nil
	}

	if err := s.resets.NotifyPasswordReset(ctx, p); err != nil {
		s.logger.Error("password reset notification failed", "principal_id", p.ID, "error", err)
	}
	return nil
}

// ResetPassword validates its input and reports success. No reset-token
// store exists, so no password is changed.
func (s *Service) ResetPassword(_ context.Context, token, newPassword string) error {
	if token == "" {
		return fmt.Errorf("%w: reset token is required", ErrInvalidInput)
	}
	return ValidatePassword(newPassword)
}
