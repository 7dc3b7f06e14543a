// Package connection talks to an ussal orchestrator.
//
//   - http.go: HTTPS client for the status endpoints
//   - job.go: websocket client that runs one job per session
//   - address.go: address normalisation for both
package connection
