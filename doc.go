// Package membergate provides the token authentication and session
// revocation core for a membership web backend: short-lived HMAC-signed
// access credentials, silent rotation via longer-lived refresh
// credentials, and immediate revocation on logout despite the access
// credential being stateless and self-validating.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// membergate is the public surface. It exposes [Engine], [Builder],
// [Config], sentinel errors, and value types. Flow orchestration, audit
// dispatch, rate limiting, and metrics live under internal/ and are never
// exported. Routing, business persistence, mail, and authorization policy
// are external collaborators; the engine answers one question: is this
// request authenticated, and as whom.
//
// # Performance contract
//
// Authenticate is the hot path. A well-formed, unexpired, unrevoked
// credential costs one Redis EXISTS plus a signature check, with no
// refresh store access. Rotation and login are allowed store round trips.
package membergate
