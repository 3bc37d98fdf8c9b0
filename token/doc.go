// Package token implements the signed-credential codec: issuing and
// verifying compact HMAC-signed access and refresh credentials carrying
// subject, authority, and expiry.
//
// # Architecture boundaries
//
// The codec is pure. It performs no I/O and holds no mutable state; key
// material is fixed at construction. Revocation checks, refresh pairing,
// and rotation policy live in the engine and its stores, never here.
package token
