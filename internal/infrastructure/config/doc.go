// Package config handles loading and validating dashauth configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with DASHAUTH_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The signing secret should be set via DASHAUTH_JWT_SECRET, never committed
//   - The config file should have restricted permissions (0600)
//   - Only HMAC signing algorithms (HS256, HS384, HS512) are accepted
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	ttl := cfg.Security.AccessTokenTTL()
package config
