package membergate

import (
	"context"
	"time"
)

// IdentityRecord is what the collaborating identity provider knows about a
// subject: a stable identifier, a single authority label, and the password
// hash used only during Login.
type IdentityRecord struct {
	Identity     string
	Authority    string
	PasswordHash string
}

// IdentityProvider resolves subjects against the application's member
// store. Implementations should return [ErrIdentityNotFound] for unknown
// subjects; any other error is treated as a backend failure.
//
// LoadByIdentity is called on every rotation, so the authority on the
// record reflects membership changes without waiting for re-login.
type IdentityProvider interface {
	LoadByIdentity(ctx context.Context, identity string) (*IdentityRecord, error)
}

// TokenPair is a freshly minted access/refresh credential pair. After a
// rotation with the stable-refresh policy, RefreshToken is empty: the
// caller keeps the refresh credential it already holds.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthResult is the authenticated context for one request.
type AuthResult struct {
	Identity  string
	Authority string

	// AccessToken is the credential in force for the rest of the request:
	// the presented one when it was valid, the replacement after rotation.
	AccessToken string

	// Rotated reports that the request was silently re-authenticated.
	// NewAccessToken must be echoed to the caller; NewRefreshToken is
	// non-empty only when the rotation policy replaces refresh credentials.
	Rotated          bool
	NewAccessToken   string
	NewRefreshToken  string
	RefreshExpiresAt time.Time
}

// RefreshExpiresIn returns the whole seconds left until the refresh
// credential expires, clamped at zero. Gateways surface this so clients
// can prompt re-login before silent rotation stops working.
func (r *AuthResult) RefreshExpiresIn(now time.Time) int64 {
	if r == nil || r.RefreshExpiresAt.IsZero() {
		return 0
	}
	left := int64(r.RefreshExpiresAt.Sub(now).Seconds())
	if left < 0 {
		return 0
	}
	return left
}
