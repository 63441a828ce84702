// Package coprocessor provides a reference confidential coprocessor and an
// HTTP client for a remote one.
//
// Local keeps every input as a ciphertext under its own P-256 exchange key and
// hands out opaque 32-byte handles. Each stored ciphertext carries the
// EncryptionContext it was bound to, and only the context's consumer may use
// the handle in a computation or a decryption request. Plaintext leaves the
// coprocessor only through a requested decryption, delivered asynchronously by
// the worker started with Run.
//
// HTTPClient implements the same capability against the oracle service.
package coprocessor
