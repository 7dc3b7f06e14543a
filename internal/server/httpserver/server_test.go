package httpserver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/ussal-go/internal/infra/tlscert"
	"github.com/yndnr/ussal-go/internal/server/httpserver/handler"
	"github.com/yndnr/ussal-go/internal/server/jobsession"
	"github.com/yndnr/ussal-go/internal/telemetry/metric"
)

func TestNew(t *testing.T) {
	s := New(Config{Address: ":0", ReadHeaderTimeout: time.Second, IdleTimeout: time.Minute}, okHandler(), nil)
	if s == nil {
		t.Fatal("New returned nil")
	}
	if s.TLS() {
		t.Error("TLS() = true without a TLS config")
	}
	if s.httpServer.ReadHeaderTimeout != time.Second || s.httpServer.IdleTimeout != time.Minute {
		t.Error("timeouts not applied")
	}
}

func TestServer_Shutdown(t *testing.T) {
	s := New(Config{Address: "127.0.0.1:0"}, okHandler(), discardLogger())

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.ListenAndServe()
	}()

	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("ListenAndServe returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for ListenAndServe to return")
	}
}

func TestServer_ListenError(t *testing.T) {
	s := New(Config{Address: "127.0.0.1:99999"}, okHandler(), discardLogger())
	if err := s.ListenAndServe(); err == nil {
		t.Error("ListenAndServe() on an invalid address should fail")
	}
}

func TestServer_TLSFromManager(t *testing.T) {
	m, err := tlscert.NewManager(&tlscert.SelfSignedIssuer{}, nil, tlscert.DefaultConfig([]string{"localhost"}), nil, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	s := New(Config{Address: "127.0.0.1:0", TLS: m.TLSConfig()}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Proto)
	}), discardLogger())
	if !s.TLS() {
		t.Fatal("TLS() = false")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go s.Serve(ln)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	pool := x509.NewCertPool()
	pool.AddCert(m.Current().Leaf)
	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig:   &tls.Config{RootCAs: pool, ServerName: "localhost"},
		ForceAttemptHTTP2: true,
	}}

	resp, err := client.Get("https://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if string(body) != "HTTP/1.1" {
		t.Errorf("protocol = %q, want HTTP/1.1", body)
	}
	if !resp.TLS.PeerCertificates[0].Equal(m.Current().Leaf) {
		t.Error("server did not present the managed certificate")
	}
}

type stubSessions struct{}

func (stubSessions) Active() int                 { return 0 }
func (stubSessions) MaxSessions() int            { return 4 }
func (stubSessions) Sessions() []jobsession.Info { return nil }

// echoUpgrader stands in for the job session handler.
func echoUpgrader() http.Handler {
	up := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.WriteMessage(mt, data)
	})
}

func newTestRouter(t *testing.T, reg *metric.Registry) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(&RouterConfig{
		Sessions:    echoUpgrader(),
		Status:      handler.New(handler.Config{Mode: "orchestrator", Sessions: stubSessions{}}, discardLogger()),
		Metrics:     reg,
		Logger:      discardLogger(),
		ConnRate:    100,
		ConnBurst:   100,
		EnableAudit: true,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRouter_Routes(t *testing.T) {
	reg := metric.NewRegistry()
	srv := newTestRouter(t, reg)

	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{http.MethodGet, "/", http.StatusOK, "sessions: 0/4"},
		{http.MethodGet, "/status", http.StatusOK, `"mode":"orchestrator"`},
		{http.MethodGet, "/health", http.StatusOK, `"healthy"`},
		{http.MethodGet, "/ready", http.StatusOK, `"ready"`},
		{http.MethodGet, "/metrics", http.StatusOK, "ussal_sessions_active"},
		{http.MethodGet, "/run_job", http.StatusBadRequest, ""},
		{http.MethodPost, "/status", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/admin", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}
			if tt.wantBody != "" && !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body missing %q: %s", tt.wantBody, body)
			}
			if tt.wantStatus != http.StatusNotFound && tt.wantStatus != http.StatusMethodNotAllowed && resp.Header.Get("X-Request-ID") == "" {
				t.Error("X-Request-ID header missing")
			}
		})
	}

	if got := testutil.ToFloat64(reg.RequestsTotal.WithLabelValues("GET", "/status", "200")); got != 1 {
		t.Errorf("requests{route=/status} = %v, want 1", got)
	}
}

func TestNewRouter_WebsocketThroughMiddleware(t *testing.T) {
	reg := metric.NewRegistry()
	srv := newTestRouter(t, reg)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/run_job"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	msg := []byte(`{"type":"authenticate"}`)
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	_, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if string(got) != string(msg) {
		t.Errorf("echo = %s, want %s", got, msg)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(reg.RequestsTotal.WithLabelValues("GET", "/run_job", "101")) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("upgraded request not recorded with status 101")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewRouter_RateLimited(t *testing.T) {
	srv := httptest.NewServer(NewRouter(&RouterConfig{
		Status:    handler.New(handler.Config{Sessions: stubSessions{}}, discardLogger()),
		Logger:    discardLogger(),
		ConnRate:  0.001,
		ConnBurst: 1,
	}))
	defer srv.Close()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429 429]", codes)
	}

	// Scrapes bypass the limiter.
	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("/metrics status = %d", resp.StatusCode)
		}
	}
}

func TestDefaultRouterConfig(t *testing.T) {
	cfg := DefaultRouterConfig()
	if cfg.ConnRate != 5 || cfg.ConnBurst != 20 || !cfg.EnableAudit {
		t.Errorf("DefaultRouterConfig() = %+v", cfg)
	}
}

func TestNewRouter_NilConfig(t *testing.T) {
	h := NewRouter(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/status status = %d, want 404 without a status handler", rec.Code)
	}
}

func TestStatusEnvelope(t *testing.T) {
	srv := newTestRouter(t, metric.NewRegistry())

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	var st handler.StatusResponse
	env := handler.Response{Data: &st}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.RequestID != resp.Header.Get("X-Request-ID") {
		t.Errorf("envelope request_id = %q, header = %q", env.RequestID, resp.Header.Get("X-Request-ID"))
	}
	if st.Sessions.Max != 4 {
		t.Errorf("Sessions.Max = %d, want 4", st.Sessions.Max)
	}
}
