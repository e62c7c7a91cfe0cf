// Command dashauth is the authentication and role-based access control
// service for the operations dashboard.
//
// Subcommands:
//
//	dashauth serve                 run the HTTP API (default)
//	dashauth migrate [--down]      apply or roll back schema migrations
//	dashauth seed-admin            create the bootstrap administrator
//	dashauth hash-password         print the bcrypt hash of a password read from stdin
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/nerrad567/dashauth/internal/infrastructure/config"
	"github.com/nerrad567/dashauth/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// CLI is the command line grammar.
type CLI struct {
	Config string `help:"Path to the YAML configuration file." env:"DASHAUTH_CONFIG" default:"configs/config.yaml" type:"path"`

	Serve        ServeCmd        `cmd:"" default:"1" help:"Run the HTTP API server."`
	Migrate      MigrateCmd      `cmd:"" help:"Apply or roll back database migrations."`
	SeedAdmin    SeedAdminCmd    `cmd:"" name:"seed-admin" help:"Create the bootstrap administrator when no principals exist."`
	HashPassword HashPasswordCmd `cmd:"" name:"hash-password" help:"Read a password from stdin and print its bcrypt hash."`

	Version kong.VersionFlag `help:"Print version information and exit."`
}

// Globals is passed to every command's Run method.
type Globals struct {
	ConfigPath string
	Stdin      io.Reader
	Stdout     io.Writer
}

// loadConfig reads the configuration and builds the logger it describes.
func (g *Globals) loadConfig() (*config.Config, *logging.Logger, error) {
	path := g.ConfigPath
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.New(cfg.Logging, version), nil
}

func main() {
	// A missing .env file is normal; anything else is worth reporting.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: loading .env: %v\n", err)
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("dashauth"),
		kong.Description("Dashboard authentication and access control service."),
		kong.Vars{"version": fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	err := kctx.Run(&Globals{
		ConfigPath: cli.Config,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
	})
	kctx.FatalIfErrorf(err)
}
