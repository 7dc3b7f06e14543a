// Package config provides server configuration for ussal-server.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (modes, limits, TLS sources)
//   - sanitize.go: Log sanitization (hide tokens and keys)
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// USSAL_ environment variables and command line overrides.
package config
