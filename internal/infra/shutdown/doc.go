// Package shutdown coordinates process termination for ussal-server.
//
// It handles:
//
//   - SIGINT and SIGTERM, running registered hooks in reverse order
//   - a deadline shared by all hooks
//   - SIGHUP, dispatched to reload hooks without stopping the process
//
// Usage:
//
//	h := shutdown.NewHandler(15*time.Second, logger)
//	h.OnShutdown("http", srv.Shutdown)
//	h.OnReload("config", reloadConfig)
//	err := h.Wait(ctx)
package shutdown
