// Package command provides CLI command definitions for ussal-cli.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: App, global flags, exit codes
//   - run.go: submit one job and stream its output
//   - status.go: query the orchestrator status endpoint
//   - token.go: generate and hash auth tokens
//   - profile.go: manage saved connection profiles
//
// Commands follow a consistent pattern of parsing flags, calling the
// connection package, and formatting output.
package command
