// Package tlscert keeps the server's TLS certificate valid without a
// restart.
//
// A Manager owns the certificate served by the listener. It loads the last
// bundle from the store, obtains a new one from its Issuer when none is
// usable, and renews ahead of expiry with bounded exponential retry. Each
// certificate is published as one immutable State through an atomic
// pointer, so a handshake sees either the old certificate and key or the
// new pair, never a mix.
//
// Issuers:
//
//   - ACMEIssuer: RFC 8555 with TLS-ALPN-01 challenges answered on the
//     serving listener
//   - SelfSignedIssuer: local development and tests
//   - FileSource: operator-managed files, reloaded on change via fsnotify
package tlscert
