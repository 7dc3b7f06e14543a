// Package logger provides structured logging for ussal.
//
// This package wraps log/slog:
//
//   - logger.go: configuration, dynamic level and the default logger
//   - context.go: context-aware logging with request and session IDs
//   - redact.go: sensitive data redaction
//
// Features:
//
//   - JSON and text output formats
//   - Log level filtering, adjustable at runtime
//   - Automatic masking of auth tokens, secrets and private keys
//   - Context propagation for request tracing
package logger
