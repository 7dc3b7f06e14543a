package handler

import (
	"net/http"
	"text/template"
	"time"

	"github.com/yndnr/ussal-go/internal/infra/buildinfo"
)

var indexTemplate = template.Must(template.New("index").Parse(`ussal {{.Build.Version}} ({{.Mode}})
up {{.Uptime}}

sessions: {{.Sessions.Active}}/{{.Sessions.Max}}
{{- range .Sessions.Live}}
  {{.ID}}  {{.State}}  {{.RemoteAddr}}{{if .Command}}  {{.Command}}{{end}}
{{- end}}
{{- with .Executor}}
executor: {{.Running}}/{{.Capacity}} running{{if not .Available}}, unavailable: {{.Error}}{{end}}
{{- end}}
{{- with .Certificate}}
certificate: {{.Phase}}{{if not .NotAfter.IsZero}}, expires {{.NotAfter.Format "2006-01-02 15:04 MST"}}{{end}}
{{- if .LastError}}
  last error: {{.LastError}}
{{- end}}
{{- end}}
`))

// Snapshot builds the current status.
func (h *Handler) Snapshot() StatusResponse {
	now := h.now()
	st := StatusResponse{
		Build:         buildinfo.Get(),
		Mode:          h.cfg.Mode,
		StartedAt:     h.cfg.StartedAt.UTC(),
		UptimeSeconds: int64(now.Sub(h.cfg.StartedAt) / time.Second),
	}
	if h.cfg.Sessions != nil {
		st.Sessions = SessionStatus{
			Active: h.cfg.Sessions.Active(),
			Max:    h.cfg.Sessions.MaxSessions(),
			Live:   h.cfg.Sessions.Sessions(),
		}
	}
	if h.cfg.Executor != nil {
		ex := &ExecutorStatus{
			Running:   h.cfg.Executor.Running(),
			Capacity:  h.cfg.Executor.Capacity(),
			Available: true,
		}
		if err := h.cfg.Executor.Available(); err != nil {
			ex.Available = false
			ex.Error = err.Error()
		}
		st.Executor = ex
	}
	if h.cfg.Certificates != nil {
		cs := h.cfg.Certificates.Status()
		st.Certificate = &cs
	}
	return st
}

// handleStatus handles GET /status.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.Snapshot())
}

// handleIndex handles GET /, a plain-text page for humans.
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := h.Snapshot()
	view := struct {
		StatusResponse
		Uptime time.Duration
	}{st, time.Duration(st.UptimeSeconds) * time.Second}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := indexTemplate.Execute(w, view); err != nil {
		h.logger.Error("failed to render status page", "error", err)
	}
}
