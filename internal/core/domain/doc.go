// Package domain defines the core domain models for ussal.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - AuthToken: client credential presented on a job session
//   - JobSpec: description of a single workload to execute
//   - SessionState: job session lifecycle and its legal transitions
//   - Identity, DelegationRule: OS identities used by the executor
//   - Errors: error codes and wire reasons
package domain
