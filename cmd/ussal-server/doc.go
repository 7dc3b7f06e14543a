// Package main provides the entry point for ussal-server.
//
// The server is the always-on benchmark orchestrator:
//
//   - GET /run_job accepts one authenticated job per websocket session
//   - workloads run as the sandbox account through sudo
//   - the TLS certificate is issued and renewed in the background (ACME)
//   - /, /status, /health, /ready and /metrics report its state
//
// Usage:
//
//	ussal-server -config /etc/ussal/server.yaml
//	ussal-server -config server.yaml -mode orchestrator
//	ussal-server -print-provisioning
//
// The provisioning artefacts (systemd unit and sudoers rule) are printed,
// never installed; an external step with root privileges applies them.
package main
