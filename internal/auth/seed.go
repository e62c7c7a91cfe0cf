package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// seedPasswordBytes is the number of random bytes in the bootstrap password.
const seedPasswordBytes = 16

// SeedAdmin creates an active management superuser when no principals exist.
// The generated password is logged once at WARN and returned; it is empty
// when seeding was skipped.
func (s *Service) SeedAdmin(ctx context.Context, username, email string) (string, error) {
	count, err := s.store.CountPrincipals(ctx)
	if err != nil {
		return "", fmt.Errorf("checking principal count: %w", err)
	}
	if count > 0 {
		s.logger.Info("principals exist, skipping admin seed")
		return "", nil
	}

	if err := ValidateUsername(username); err != nil {
		return "", err
	}
	if err := ValidateEmail(email); err != nil {
		return "", err
	}

	b := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(b)

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	now := s.now()
	admin := &Principal{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    "System",
		LastName:     "Administrator",
		Role:         RoleManagement,
		IsActive:     true,
		IsSuperuser:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertPrincipal(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	s.logger.Warn("seed admin account created",
		"username", username,
		"password", password,
		"action_required", "change this password immediately",
	)
	s.record(ctx, Event{Type: EventPrincipalCreated, PrincipalID: admin.ID, Username: admin.Username, Role: admin.Role})
	return password, nil
}
