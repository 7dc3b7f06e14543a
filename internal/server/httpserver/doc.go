// Package httpserver provides the HTTPS listener of the orchestrator.
//
// The listener serves certificates from the certificate manager and answers
// TLS-ALPN-01 challenges on the same port. Routes:
//
//   - GET /run_job  websocket upgrade into a job session
//   - GET /         human-readable status page
//   - GET /status   JSON status
//   - GET /health, GET /ready
//   - GET /metrics  Prometheus exposition
package httpserver
