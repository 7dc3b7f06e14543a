// Package service provides domain services for ussal.
//
// Domain services contain pure business logic on domain models and hold no
// IO dependencies beyond what they are handed at construction.
//
// This package contains:
//
//   - AuthService: the Credential Validator. Decides whether a presented
//     AuthToken belongs to the trusted set, with constant-time comparison
//     and an advisory per-client failure limiter.
//
// Services are safe for concurrent use by any number of job sessions.
package service
