// Package logging provides structured logging for dashauth.
//
// It wraps log/slog so every entry carries the service name and version.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8000)
//
// # Security
//
// Never log passwords, password hashes, refresh tokens or access tokens.
// The one exception is the generated bootstrap administrator password,
// which is logged once at WARN so an operator can retrieve it.
package logging
