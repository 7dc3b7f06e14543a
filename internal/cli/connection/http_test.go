package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yndnr/ussal-go/internal/infra/tlsroots"
)

func TestNewHTTPClient(t *testing.T) {
	client, err := NewHTTPClient("bench.example.org", nil)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	if client.BaseURL() != "https://bench.example.org" {
		t.Errorf("BaseURL() = %q", client.BaseURL())
	}

	if _, err := NewHTTPClient("", nil); err == nil {
		t.Error("NewHTTPClient(\"\") should fail")
	}
}

func TestHTTPClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "ussal-cli/") {
			t.Errorf("User-Agent = %q, want ussal-cli/ prefix", ua)
		}
		if r.URL.Path != "/test/path" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/test/path")
		}
		w.Write([]byte(`{"code":"OK"}`))
	}))
	defer server.Close()

	client, _ := NewHTTPClient(server.URL, nil)
	resp, err := client.Get(context.Background(), "/test/path")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestHTTPClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":"OK","message":"Success","request_id":"req-1","timestamp":1,
			"data":{"mode":"orchestrator","uptime_seconds":42,
			"sessions":{"active":2,"max":64},
			"certificate":{"phase":"renewing","issuer":"acme","domains":["bench.example.org"]}}}`))
	}))
	defer server.Close()

	client, _ := NewHTTPClient(server.URL, nil)
	st, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Mode != "orchestrator" || st.UptimeSeconds != 42 {
		t.Errorf("Status() = %+v", st)
	}
	if st.Sessions.Active != 2 || st.Sessions.Max != 64 {
		t.Errorf("Sessions = %+v", st.Sessions)
	}
	if st.Certificate == nil || st.Certificate.Phase.String() != "renewing" {
		t.Errorf("Certificate = %+v", st.Certificate)
	}
	if st.Executor != nil {
		t.Errorf("Executor = %+v, want nil", st.Executor)
	}
}

func TestParseResponse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"envelope error", http.StatusServiceUnavailable, `{"code":"USL-SYS-5031","message":"service not ready"}`, "[USL-SYS-5031] service not ready"},
		{"plain error", http.StatusBadGateway, `bad gateway`, "request failed with status 502"},
		{"malformed success", http.StatusOK, `{not json`, "parse response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, _ := NewHTTPClient(server.URL, nil)
			resp, err := client.Get(context.Background(), "/status")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			var out map[string]any
			err = ParseResponse(resp, &out)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseResponse() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPClient_CustomRoots(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"OK","data":{"mode":"orchestrator"}}`))
	}))
	defer server.Close()

	// System roots do not trust the test server.
	plain, _ := NewHTTPClient(server.URL, nil)
	if _, err := plain.Status(context.Background()); err == nil {
		t.Error("Status() with system roots should fail verification")
	}

	pool := tlsroots.NewPool()
	pool.AddCert(server.Certificate())
	trusted, _ := NewHTTPClient(server.URL, pool.ClientConfig(""))
	st, err := trusted.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() with custom roots error = %v", err)
	}
	if st.Mode != "orchestrator" {
		t.Errorf("Mode = %q", st.Mode)
	}
}
