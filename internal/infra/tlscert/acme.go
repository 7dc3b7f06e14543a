package tlscert

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/acme"

	"github.com/yndnr/ussal-go/internal/storage"
	"github.com/yndnr/ussal-go/pkg/cmap"
)

// LetsEncryptURL is the production Let's Encrypt directory.
const LetsEncryptURL = acme.LetsEncryptURL

// LetsEncryptStagingURL is the Let's Encrypt staging directory.
const LetsEncryptStagingURL = "https://acme-staging-v02.api.letsencrypt.org/directory"

// ALPNProto is the ALPN protocol of TLS-ALPN-01 challenge handshakes.
const ALPNProto = acme.ALPNProto

const challengeTLSALPN01 = "tls-alpn-01"

// ACMEConfig configures an ACMEIssuer.
type ACMEConfig struct {
	DirectoryURL string
	Email        string
	// Store persists the account key. Nil uses a new key per process.
	Store      storage.KV
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// ACMEIssuer obtains certificates from an RFC 8555 CA using TLS-ALPN-01.
// The serving listener must route acme-tls/1 handshakes to
// ChallengeCertificate, which Manager.GetCertificate does.
type ACMEIssuer struct {
	cfg        ACMEConfig
	logger     *slog.Logger
	challenges *cmap.Map[*tls.Certificate]
}

// NewACMEIssuer creates an ACMEIssuer.
func NewACMEIssuer(cfg ACMEConfig) *ACMEIssuer {
	if cfg.DirectoryURL == "" {
		cfg.DirectoryURL = LetsEncryptURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ACMEIssuer{
		cfg:        cfg,
		logger:     logger.With("component", "acme"),
		challenges: cmap.New[*tls.Certificate](),
	}
}

// Name implements Issuer.
func (a *ACMEIssuer) Name() string { return "acme" }

// ChallengeCertificate implements ChallengeResponder.
func (a *ACMEIssuer) ChallengeCertificate(serverName string) (*tls.Certificate, bool) {
	return a.challenges.Get(serverName)
}

// Issue runs one complete order: account, authorizations, finalization.
func (a *ACMEIssuer) Issue(ctx context.Context, domains []string) (*Bundle, error) {
	if len(domains) == 0 {
		return nil, errors.New("acme: no domains")
	}

	accountKey, err := a.accountKey(ctx)
	if err != nil {
		return nil, err
	}
	client := &acme.Client{
		Key:          accountKey,
		DirectoryURL: a.cfg.DirectoryURL,
		HTTPClient:   a.cfg.HTTPClient,
		UserAgent:    "ussal",
	}

	acct := &acme.Account{}
	if a.cfg.Email != "" {
		acct.Contact = []string{"mailto:" + a.cfg.Email}
	}
	if _, err := client.Register(ctx, acct, acme.AcceptTOS); err != nil && !errors.Is(err, acme.ErrAccountAlreadyExists) {
		return nil, fmt.Errorf("acme: register account: %w", err)
	}

	order, err := client.AuthorizeOrder(ctx, acme.DomainIDs(domains...))
	if err != nil {
		return nil, fmt.Errorf("acme: authorize order: %w", err)
	}
	for _, zurl := range order.AuthzURLs {
		if err := a.authorize(ctx, client, zurl); err != nil {
			return nil, err
		}
	}
	if order, err = client.WaitOrder(ctx, order.URI); err != nil {
		return nil, fmt.Errorf("acme: wait order: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("acme: generate key: %w", err)
	}
	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: domains[0]},
		DNSNames: domains,
	}, key)
	if err != nil {
		return nil, fmt.Errorf("acme: create csr: %w", err)
	}
	chain, _, err := client.CreateOrderCert(ctx, order.FinalizeURL, csr, true)
	if err != nil {
		return nil, fmt.Errorf("acme: finalize order: %w", err)
	}

	a.logger.Info("certificate issued", "domains", domains)
	return encodeBundle(chain, key)
}

func (a *ACMEIssuer) authorize(ctx context.Context, client *acme.Client, zurl string) error {
	z, err := client.GetAuthorization(ctx, zurl)
	if err != nil {
		return fmt.Errorf("acme: get authorization: %w", err)
	}
	if z.Status == acme.StatusValid {
		return nil
	}

	var chal *acme.Challenge
	for _, c := range z.Challenges {
		if c.Type == challengeTLSALPN01 {
			chal = c
			break
		}
	}
	if chal == nil {
		return fmt.Errorf("acme: %s offers no %s challenge", z.Identifier.Value, challengeTLSALPN01)
	}

	name := z.Identifier.Value
	cert, err := client.TLSALPN01ChallengeCert(chal.Token, name)
	if err != nil {
		return fmt.Errorf("acme: challenge cert: %w", err)
	}
	a.challenges.Set(name, &cert)
	defer a.challenges.Delete(name)

	a.logger.Debug("accepting challenge", "domain", name, "type", chal.Type)
	if _, err := client.Accept(ctx, chal); err != nil {
		return fmt.Errorf("acme: accept challenge: %w", err)
	}
	if _, err := client.WaitAuthorization(ctx, z.URI); err != nil {
		return fmt.Errorf("acme: authorization for %s: %w", name, err)
	}
	return nil
}

// accountKey loads the account key for the directory or creates and stores
// a new one.
func (a *ACMEIssuer) accountKey(ctx context.Context) (crypto.Signer, error) {
	storeKey := []byte("acme/account/" + a.cfg.DirectoryURL)
	if a.cfg.Store != nil {
		data, err := a.cfg.Store.Get(ctx, storeKey)
		switch {
		case err == nil:
			block, _ := pem.Decode(data)
			if block == nil {
				return nil, errors.New("acme: stored account key is not PEM")
			}
			key, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("acme: parse account key: %w", err)
			}
			return key, nil
		case !errors.Is(err, storage.ErrKeyNotFound):
			return nil, fmt.Errorf("acme: load account key: %w", err)
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("acme: generate account key: %w", err)
	}
	if a.cfg.Store != nil {
		der, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("acme: marshal account key: %w", err)
		}
		if err := a.cfg.Store.Set(ctx, storeKey, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})); err != nil {
			return nil, fmt.Errorf("acme: store account key: %w", err)
		}
		a.logger.Info("acme account key created", "directory", a.cfg.DirectoryURL)
	}
	return key, nil
}
