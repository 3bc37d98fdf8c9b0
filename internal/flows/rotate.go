package flows

import (
	"context"
	"errors"
	"time"

	"github.com/membergate/membergate/session"
	"github.com/membergate/membergate/token"
)

// RotateResult carries the minted credential pair or failure metadata.
type RotateResult struct {
	Failure FailureKind
	Err     error

	Identity         string
	Authority        string
	NewAccess        string
	NewRefresh       string
	RefreshExpiresAt time.Time
}

// RotateDeps captures rotation flow dependencies.
type RotateDeps struct {
	VerifyRefresh  func(tokenValue string) (*token.Claims, error)
	HashValue      func(value string) string
	LookupByAccess func(ctx context.Context, accessHash string) (*session.Record, error)
	Lookup         func(ctx context.Context, identity string) (*session.Record, error)
	Rotate         func(ctx context.Context, identity, providedRefreshHash, observedAccessHash, newAccessHash, newRefreshHash string) (*session.Record, error)
	LoadByIdentity func(ctx context.Context, subject string) (identity, authority string, err error)
	IssueAccess    func(identity, authority string) (string, error)
	IssueRefresh   func(identity, authority string, ttl time.Duration) (string, error)
	CheckThrottle  func(ctx context.Context, identity string) error

	// RotateRefreshValue mints a replacement refresh credential on every
	// rotation (reuse detection). Off, the refresh credential on file
	// stays valid until its own expiry or logout.
	RotateRefreshValue bool

	Now func() time.Time
}

// RunRotate attempts silent re-authentication: it resolves the refresh
// record paired with the (possibly superseded) access credential, checks
// the presented refresh credential against the one on file, rebuilds the
// identity, and atomically swaps the pairing to a freshly minted access
// credential.
//
// accessValue may be empty (no access credential on the request) or an
// expired credential; either way the refresh credential's subject is the
// fallback route to the record.
func RunRotate(ctx context.Context, accessValue, refreshValue string, deps RotateDeps) RotateResult {
	now := deps.Now()

	if refreshValue == "" {
		return rotateFailure(FailureRefreshInvalid, errors.New("no refresh credential"))
	}

	refreshClaims, err := deps.VerifyRefresh(refreshValue)
	if err != nil {
		// Malformed or naturally expired refresh credential: re-login.
		return rotateFailure(FailureRefreshInvalid, err)
	}

	if deps.CheckThrottle != nil {
		if err := deps.CheckThrottle(ctx, refreshClaims.Identity); err != nil {
			return rotateFailure(FailureRefreshInvalid, err)
		}
	}

	rec, err := deps.resolveRecord(ctx, accessValue, refreshClaims.Identity)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return rotateFailure(FailureRefreshInvalid, err)
		}
		return rotateFailure(FailureStore, err)
	}

	providedHash := deps.HashValue(refreshValue)
	if rec.RefreshHash != providedHash {
		return rotateFailure(FailureRefreshMismatch, session.ErrRefreshMismatch)
	}

	identity, authority, err := deps.LoadByIdentity(ctx, rec.Identity)
	if err != nil {
		return rotateFailure(FailureIdentity, err)
	}

	newAccess, err := deps.IssueAccess(identity, authority)
	if err != nil {
		return rotateFailure(FailureIssue, err)
	}

	newRefresh := ""
	newRefreshHash := providedHash
	if deps.RotateRefreshValue {
		// The replacement inherits the record's remaining lifetime so
		// rotation never extends the session.
		newRefresh, err = deps.IssueRefresh(identity, authority, rec.RemainingTTL(now))
		if err != nil {
			return rotateFailure(FailureIssue, err)
		}
		newRefreshHash = deps.HashValue(newRefresh)
	}

	updated, err := deps.Rotate(ctx, rec.Identity, providedHash, rec.AccessHash, deps.HashValue(newAccess), newRefreshHash)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrConflict):
			return rotateFailure(FailureRotationConflict, err)
		case errors.Is(err, session.ErrRefreshMismatch):
			return rotateFailure(FailureRefreshMismatch, err)
		case errors.Is(err, session.ErrNotFound):
			return rotateFailure(FailureRefreshInvalid, err)
		default:
			return rotateFailure(FailureStore, err)
		}
	}

	return RotateResult{
		Identity:         identity,
		Authority:        authority,
		NewAccess:        newAccess,
		NewRefresh:       newRefresh,
		RefreshExpiresAt: time.Unix(updated.ExpiresAt, 0),
	}
}

// resolveRecord finds the refresh record for this rotation attempt. The
// paired-access index is tried first; when the presented access credential
// has already been superseded by an earlier rotation, the refresh
// credential's subject still resolves the record, and the mismatch check
// plus CAS decide whether the attempt may proceed.
func (deps RotateDeps) resolveRecord(ctx context.Context, accessValue, subject string) (*session.Record, error) {
	if accessValue != "" {
		rec, err := deps.LookupByAccess(ctx, deps.HashValue(accessValue))
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			return nil, err
		}
	}
	return deps.Lookup(ctx, subject)
}

func rotateFailure(kind FailureKind, err error) RotateResult {
	return RotateResult{Failure: kind, Err: err}
}
