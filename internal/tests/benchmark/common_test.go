package benchmark

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/yndnr/ussal-go/internal/core/service"
	"github.com/yndnr/ussal-go/internal/executor"
	"github.com/yndnr/ussal-go/internal/executor/executortest"
	"github.com/yndnr/ussal-go/internal/server/jobsession"
	"github.com/yndnr/ussal-go/pkg/token"
)

// TrustCounts are the trusted set sizes for validator benchmarks.
var TrustCounts = []int{1, 16, 256, 4096}

// newTokens generates count distinct auth tokens.
func newTokens(b *testing.B, count int) []string {
	b.Helper()
	tokens := make([]string, count)
	for i := range tokens {
		tok, err := token.GenerateAuthToken()
		if err != nil {
			b.Fatalf("GenerateAuthToken() error = %v", err)
		}
		tokens[i] = tok
	}
	return tokens
}

// newAuth builds a validator trusting tokens, with the failure limiter off.
func newAuth(b *testing.B, cfg *service.AuthServiceConfig) *service.AuthService {
	b.Helper()
	auth, err := service.NewAuthService(cfg, nil)
	if err != nil {
		b.Fatalf("NewAuthService() error = %v", err)
	}
	return auth
}

// newOrchestrator serves /run_job with workloads run as the current user.
func newOrchestrator(b *testing.B, tok string, maxConcurrent int) *httptest.Server {
	b.Helper()

	auth := newAuth(b, &service.AuthServiceConfig{Tokens: []string{tok}})
	ecfg := executor.DefaultConfig()
	ecfg.MaxConcurrent = maxConcurrent
	ex := executor.New(executortest.NewSpawner(b), executortest.Identity(), ecfg, nil, nil)

	cfg := jobsession.DefaultConfig()
	cfg.PingInterval = 0
	cfg.MaxSessions = maxConcurrent * 2
	h := jobsession.NewHandler(auth, ex, cfg, nil, nil)

	mux := http.NewServeMux()
	mux.Handle("GET /run_job", h)
	srv := httptest.NewServer(mux)
	b.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.Shutdown(ctx)
		srv.Close()
	})
	return srv
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithTrustCounts runs a benchmark function with various trusted set sizes.
func runWithTrustCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("trusted_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
