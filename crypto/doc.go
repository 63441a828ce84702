// Package crypto provides the cryptographic primitives used by the revealer
// and its confidential coprocessor.
//
// This package implements:
//
//   - Digital signatures (Ed25519) authenticating every state-changing request
//   - Addresses derived from signing keys, used as participant identities
//   - ECIES envelope encryption (P-256 ECDH, HKDF-SHA3, AES-256-GCM) binding
//     a ciphertext to an encryption context (owner address and consumer address)
//   - A fixed-width encoding for the numeric values being compared
//
// # Encryption Contexts
//
// Every ciphertext is bound to an EncryptionContext. The context salts the key
// derivation and is authenticated as additional data, so a ciphertext produced
// for one application or owner cannot be replayed into another.
//
// # Key Management
//
// Keys are plain byte slices with helpers for hex serialization and comparison.
// Private key material is never logged.
package crypto
