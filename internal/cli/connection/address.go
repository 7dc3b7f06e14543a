package connection

import (
	"fmt"
	"net/url"
	"strings"
)

// JobPath is the session upgrade endpoint.
const JobPath = "/run_job"

// parseAddress accepts host[:port], http(s):// or ws(s):// addresses.
// Addresses without a scheme are secure.
func parseAddress(address string) (*url.URL, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if !strings.Contains(address, "://") {
		address = "https://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", address, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("address %q has no host", address)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("address %q: unsupported scheme %q", address, u.Scheme)
	}
	return u, nil
}

// HTTPURL returns the base http(s) URL for address, without a trailing
// slash or path.
func HTTPURL(address string) (string, error) {
	u, err := parseAddress(address)
	if err != nil {
		return "", err
	}
	scheme := "https"
	if u.Scheme == "http" || u.Scheme == "ws" {
		scheme = "http"
	}
	return scheme + "://" + u.Host, nil
}

// JobURL returns the ws(s) URL of the session endpoint for address. An
// explicit path in address is kept.
func JobURL(address string) (string, error) {
	u, err := parseAddress(address)
	if err != nil {
		return "", err
	}
	scheme := "wss"
	if u.Scheme == "http" || u.Scheme == "ws" {
		scheme = "ws"
	}
	path := u.Path
	if path == "" || path == "/" {
		path = JobPath
	}
	return scheme + "://" + u.Host + path, nil
}
