// Package handler provides the read-only HTTP endpoints of the orchestrator.
//
//   - GET /        human-readable status page
//   - GET /status  JSON status in the standard response envelope
//   - GET /health  liveness
//   - GET /ready   readiness (executor delegation and certificate)
//
// The session upgrade endpoint lives in package jobsession; the router in
// package httpserver mounts both.
package handler
