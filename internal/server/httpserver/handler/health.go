package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/infra/tlscert"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, HealthResponse{
		Status: "healthy",
		Time:   h.now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready. The server is not ready while the executor
// cannot delegate or no certificate is being served.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	failed := h.readinessFailures()
	if len(failed) > 0 {
		h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrNotReady.Code, domain.ErrNotReady.Message, HealthResponse{
			Status: "not_ready",
			Time:   h.now().UTC().Format(time.RFC3339),
			Checks: failed,
		})
		return
	}
	h.writeJSON(w, r, http.StatusOK, HealthResponse{
		Status: "ready",
		Time:   h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) readinessFailures() []string {
	var failed []string
	if h.cfg.Executor != nil {
		if err := h.cfg.Executor.Available(); err != nil {
			failed = append(failed, "executor: "+err.Error())
		}
	}
	if h.cfg.Certificates != nil {
		switch st := h.cfg.Certificates.Status(); st.Phase {
		case tlscert.PhaseUninitialized, tlscert.PhaseIssuing:
			failed = append(failed, "certificate: "+st.Phase.String())
		}
	}
	return failed
}
