package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/dashauth/internal/auth"
	"github.com/nerrad567/dashauth/internal/events"
	"github.com/nerrad567/dashauth/internal/infrastructure/database"
	"github.com/nerrad567/dashauth/migrations"
)

// MigrateCmd applies pending migrations, or rolls back the latest one.
type MigrateCmd struct {
	Down   bool `help:"Roll back the most recently applied migration."`
	Status bool `help:"List applied and pending migrations without changing anything."`
}

// Run implements the migrate command.
func (m *MigrateCmd) Run(ctx context.Context, g *Globals) error {
	cfg, log, err := g.loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Process exits next
	migrator := db.Migrator(migrations.FS)

	switch {
	case m.Status:
		applied, pending, statusErr := migrator.Status(ctx)
		if statusErr != nil {
			return statusErr
		}
		for _, r := range applied {
			fmt.Fprintf(g.Stdout, "applied  %s  %s\n", r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		for _, p := range pending {
			fmt.Fprintf(g.Stdout, "pending  %s  %s\n", p.Version, p.Name)
		}
	case m.Down:
		version, downErr := migrator.Down(ctx)
		if downErr != nil {
			return fmt.Errorf("rolling back migration: %w", downErr)
		}
		if version == "" {
			fmt.Fprintln(g.Stdout, "no migrations applied")
			return nil
		}
		log.Info("migration rolled back", "version", version)
		fmt.Fprintf(g.Stdout, "rolled back %s\n", version)
	default:
		n, upErr := migrator.Up(ctx)
		if upErr != nil {
			return fmt.Errorf("running migrations: %w", upErr)
		}
		log.Info("database migrations complete", "applied", n)
		fmt.Fprintf(g.Stdout, "applied %d migration(s)\n", n)
	}
	return nil
}

// SeedAdminCmd creates the bootstrap administrator and prints its password.
type SeedAdminCmd struct {
	Username string `help:"Administrator username (defaults to bootstrap.admin_username)."`
	Email    string `help:"Administrator email (defaults to bootstrap.admin_email)."`
}

// Run implements the seed-admin command.
func (c *SeedAdminCmd) Run(ctx context.Context, g *Globals) error {
	cfg, log, err := g.loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Process exits next

	svc, err := newAuthService(cfg, db, log, events.Combine())
	if err != nil {
		return err
	}

	username := c.Username
	if username == "" {
		username = cfg.Bootstrap.AdminUsername
	}
	email := c.Email
	if email == "" {
		email = cfg.Bootstrap.AdminEmail
	}

	password, err := svc.SeedAdmin(ctx, username, email)
	if err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}
	if password == "" {
		fmt.Fprintln(g.Stdout, "principals already exist, nothing to do")
		return nil
	}
	fmt.Fprintf(g.Stdout, "created %s with password: %s\n", username, password)
	return nil
}

// HashPasswordCmd prints the bcrypt hash of the first line read from stdin.
type HashPasswordCmd struct {
	Cost int `help:"bcrypt cost factor." default:"10"`
}

// Run implements the hash-password command. No configuration is needed.
func (c *HashPasswordCmd) Run(g *Globals) error {
	scanner := bufio.NewScanner(g.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		return errors.New("no password on stdin")
	}
	password := strings.TrimRight(scanner.Text(), "\r")

	if err := auth.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := auth.NewHasher(c.Cost).Hash(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(g.Stdout, hash)
	return nil
}
