package tlscert

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Phase is the lifecycle phase of the served certificate.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseIssuing
	PhaseValid
	PhaseRenewing
	PhaseExpiring
	PhaseInvalid
)

var phaseNames = [...]string{
	PhaseUninitialized: "uninitialized",
	PhaseIssuing:       "issuing",
	PhaseValid:         "valid",
	PhaseRenewing:      "renewing",
	PhaseExpiring:      "expiring",
	PhaseInvalid:       "invalid",
}

// String returns the lower-case phase name.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int32(p))
	}
	return phaseNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("tlscert: unknown phase %q", text)
}

// State is one published certificate. It is never modified after
// publication.
type State struct {
	Certificate *tls.Certificate
	Leaf        *x509.Certificate
	Domains     []string
	NotAfter    time.Time
	IssuedAt    time.Time
	Issuer      string
}

// Remaining returns the validity left at now.
func (s *State) Remaining(now time.Time) time.Duration {
	return s.NotAfter.Sub(now)
}

// Covers reports whether the leaf is valid for every domain.
func (s *State) Covers(domains []string) bool {
	for _, d := range domains {
		if s.Leaf.VerifyHostname(d) != nil {
			return false
		}
	}
	return true
}

// Bundle is a PEM certificate chain with its private key.
type Bundle struct {
	CertPEM []byte
	KeyPEM  []byte
}

// Marshal concatenates the chain and key into one PEM document.
func (b *Bundle) Marshal() []byte {
	out := make([]byte, 0, len(b.CertPEM)+len(b.KeyPEM)+1)
	out = append(out, b.CertPEM...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return append(out, b.KeyPEM...)
}

// ParseBundle splits a PEM document produced by Marshal.
func ParseBundle(data []byte) (*Bundle, error) {
	var certs, key bytes.Buffer
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			_ = pem.Encode(&certs, block)
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			if key.Len() > 0 {
				return nil, errors.New("bundle holds more than one private key")
			}
			_ = pem.Encode(&key, block)
		}
	}
	if certs.Len() == 0 {
		return nil, errors.New("bundle holds no certificate")
	}
	if key.Len() == 0 {
		return nil, errors.New("bundle holds no private key")
	}
	return &Bundle{CertPEM: certs.Bytes(), KeyPEM: key.Bytes()}, nil
}

// State parses the bundle into a publishable State. The key must match the
// leaf.
func (b *Bundle) State(issuer string, issuedAt time.Time) (*State, error) {
	cert, err := tls.X509KeyPair(b.CertPEM, b.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse key pair: %w", err)
	}
	leaf := cert.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return nil, fmt.Errorf("parse leaf: %w", err)
		}
		cert.Leaf = leaf
	}

	domains := append([]string(nil), leaf.DNSNames...)
	for _, ip := range leaf.IPAddresses {
		domains = append(domains, ip.String())
	}
	sort.Strings(domains)

	return &State{
		Certificate: &cert,
		Leaf:        leaf,
		Domains:     domains,
		NotAfter:    leaf.NotAfter,
		IssuedAt:    issuedAt,
		Issuer:      issuer,
	}, nil
}

// cacheKey is the store key for a domain set, independent of order.
func cacheKey(domains []string) []byte {
	sorted := append([]string(nil), domains...)
	sort.Strings(sorted)
	return []byte("cert/" + strings.Join(sorted, ","))
}
