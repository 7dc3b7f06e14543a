// Package main provides the entry point for ussal-cli.
//
// The CLI submits benchmark jobs to a ussal orchestrator and streams their
// output back:
//
//   - run: submit one job, stream stdout/stderr, exit with the job status
//   - status: show the orchestrator status (table, json or yaml)
//   - token: generate auth tokens and their configuration hashes
//
// Usage:
//
//	ussal-cli --address bench.example run -- ./bench --rounds 10
//	ussal-cli --address bench.example status -o json
//	ussal-cli token generate --with-hash
package main
