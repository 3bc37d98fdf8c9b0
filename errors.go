package membergate

import "errors"

var (
	// ErrUnauthorized is the generic rejection returned when a request
	// carries no usable credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned by Login on a bad password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrIdentityNotFound is returned when the identity provider has no
	// record for the subject.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrLoginRateLimited is returned when the login attempt budget for an
	// identity or IP is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when the rotation attempt budget
	// for an identity is exhausted.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrTokenMalformed marks a corrupt or forged access credential.
	// Reject, no retry.
	ErrTokenMalformed = errors.New("malformed token")
	// ErrTokenExpired marks an authentic access credential past its
	// expiry. Recoverable via rotation.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked marks an access credential that was explicitly
	// blacklisted. Rejected regardless of cryptographic validity.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRefreshInvalid marks a missing, malformed, expired, or unknown
	// refresh credential. The caller must re-login.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshMismatch marks a refresh credential that does not match
	// the one on file for the identity. The caller must re-login.
	ErrRefreshMismatch = errors.New("refresh token mismatch")
	// ErrRotationConflict is the transient race loss: another request
	// rotated the same credential first. The request is rejected but the
	// system as a whole made progress.
	ErrRotationConflict = errors.New("rotation conflict")
	// ErrSessionExists is returned by Login when the single-session policy
	// is off and a live session already exists for the identity.
	ErrSessionExists = errors.New("session already exists")
	// ErrStoreUnavailable wraps refresh or revocation store transport
	// failures.
	ErrStoreUnavailable = errors.New("auth store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a
	// nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not ready")
)
