package tlscert

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"
)

// Issuer obtains a certificate bundle for a domain set.
type Issuer interface {
	// Name identifies the issuer in logs and status output.
	Name() string
	Issue(ctx context.Context, domains []string) (*Bundle, error)
}

// ChallengeResponder is implemented by issuers that answer TLS-ALPN-01
// challenges on the serving listener.
type ChallengeResponder interface {
	ChallengeCertificate(serverName string) (*tls.Certificate, bool)
}

// IssuerFunc adapts a function to the Issuer interface.
type IssuerFunc func(ctx context.Context, domains []string) (*Bundle, error)

// Name implements Issuer.
func (f IssuerFunc) Name() string { return "func" }

// Issue implements Issuer.
func (f IssuerFunc) Issue(ctx context.Context, domains []string) (*Bundle, error) {
	return f(ctx, domains)
}

// SelfSignedIssuer creates self-signed ECDSA P-256 certificates.
type SelfSignedIssuer struct {
	// Validity defaults to 90 days.
	Validity time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Name implements Issuer.
func (s *SelfSignedIssuer) Name() string { return "self_signed" }

// Issue implements Issuer. IP literals in domains become IP SANs.
func (s *SelfSignedIssuer) Issue(ctx context.Context, domains []string) (*Bundle, error) {
	if len(domains) == 0 {
		return nil, errors.New("self-signed: no domains")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	validity := s.Validity
	if validity <= 0 {
		validity = 90 * 24 * time.Hour
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("self-signed: generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("self-signed: serial: %w", err)
	}

	start := now().Add(-time.Minute)
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: domains[0], Organization: []string{"ussal"}},
		NotBefore:             start,
		NotAfter:              start.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, d := range domains {
		if ip := net.ParseIP(d); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, d)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("self-signed: create certificate: %w", err)
	}
	return encodeBundle([][]byte{der}, key)
}

// encodeBundle PEM-encodes a DER chain and an ECDSA key.
func encodeBundle(chain [][]byte, key *ecdsa.PrivateKey) (*Bundle, error) {
	var certPEM []byte
	for _, der := range chain {
		certPEM = append(certPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return &Bundle{
		CertPEM: certPEM,
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}, nil
}
