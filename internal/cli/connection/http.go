package connection

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yndnr/ussal-go/internal/infra/buildinfo"
	"github.com/yndnr/ussal-go/internal/server/httpserver/handler"
)

// HTTPClient provides HTTP communication with the server.
type HTTPClient struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewHTTPClient creates a new HTTP client. A nil tlsConfig uses the system
// roots.
func NewHTTPClient(address string, tlsConfig *tls.Config) (*HTTPClient, error) {
	baseURL, err := HTTPURL(address)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}

	return &HTTPClient{
		baseURL:   baseURL,
		userAgent: buildinfo.UserAgent("ussal-cli"),
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}, nil
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return c.client.Do(req)
}

// Status fetches GET /status.
func (c *HTTPClient) Status(ctx context.Context) (*handler.StatusResponse, error) {
	resp, err := c.Get(ctx, "/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var st handler.StatusResponse
	if err := ParseResponse(resp, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// ParseResponse decodes the standard envelope and unpacks its data into
// target. Error envelopes become errors carrying the server's code.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	env := handler.Response{Data: target}
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 400 {
		if decodeErr == nil && env.Message != "" {
			return fmt.Errorf("[%s] %s", env.Code, env.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}
	return nil
}
