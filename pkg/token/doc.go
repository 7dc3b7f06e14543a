// Package token provides auth token generation and verification utilities.
//
// Token Format:
//
//   - Prefix: ussal_ (6 characters)
//   - Body: 43 characters of Base64 RawURL encoded random bytes
//
// Trusted tokens are kept only as SHA-256 digests. Verification hashes the
// presented token and compares digests with crypto/subtle, so the time taken
// does not depend on how many leading characters match.
package token
