// Package storage provides the durable key-value store behind ussal's
// certificate cache.
//
// The store holds two kinds of records:
//
//   - cert/<domains>: the PEM bundle (chain and private key) last issued
//     for a sorted domain set
//   - acme/account/<directory>: the ACME account key for a directory URL
//
// BadgerEngine is the embedded engine. SealedStore wraps any KV and seals
// every value with pkg/crypto/adaptive, binding each ciphertext to its key so
// records cannot be swapped on disk.
package storage
