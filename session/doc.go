// Package session implements the refresh store: the durable mapping from
// an identity and its currently paired access credential to the refresh
// credential on file, with atomic rotation.
//
// # Rotation protocol
//
// Rotate is a compare-and-swap keyed by identity. The caller looks up the
// record, observes the paired access hash, mints a replacement access
// credential, and swaps the pairing in one atomic step. Concurrent callers
// observe the same paired value and exactly one swap succeeds; losers get
// ErrConflict. A caller presenting a refresh credential that no longer
// matches the record gets ErrRefreshMismatch and must re-login.
//
// # Architecture boundaries
//
// The store never sees credential plaintext (hashes only) and never signs,
// verifies, or classifies tokens. Decision logic lives in internal/flows.
package session
