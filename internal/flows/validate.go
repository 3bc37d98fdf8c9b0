package flows

import (
	"context"
	"errors"
	"time"

	"github.com/membergate/membergate/token"
)

// State classifies an incoming access credential.
type State int

const (
	StateAbsent State = iota
	StateMalformed
	StateRevoked
	StateExpired
	StateValid
	StateRotated
	StateRejected
)

// FailureKind distinguishes rejection causes for diagnostics and audit.
// Every kind maps to the same external observable (authentication failure).
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureMalformed
	FailureRevoked
	// FailureExpired: the access credential is authentic but past expiry
	// and the request carries nothing to rotate with.
	FailureExpired
	FailureRefreshInvalid
	FailureRefreshMismatch
	FailureRotationConflict
	FailureIdentity
	FailureIssue
	FailureStore
)

// Decision is the outcome of classifying one request's credentials.
// On StateValid/StateRotated it carries the authenticated context; on
// StateRotated also the replacement credentials to echo to the caller.
type Decision struct {
	State   State
	Failure FailureKind
	Err     error

	Identity  string
	Authority string

	// AccessValue is the credential in force for the rest of the request:
	// the presented one when valid, the freshly minted one after rotation.
	AccessValue string

	// NewAccess and NewRefresh are set after rotation. NewRefresh is empty
	// when the refresh credential stays stable across the rotation.
	NewAccess        string
	NewRefresh       string
	RefreshExpiresAt time.Time
}

// Rejected reports whether the decision terminates the request.
func (d Decision) Rejected() bool {
	return d.State == StateRejected
}

// ClassifyDeps captures the validator's collaborators. All calls are
// supplied as funcs so the classification logic stays pure and testable
// without the root package.
type ClassifyDeps struct {
	IsRevoked func(ctx context.Context, accessValue string) (bool, error)
	Verify    func(tokenValue string) (*token.Claims, error)
	Rotate    RotateDeps
}

// RunClassify drives the validator state machine for one request:
//
//	ABSENT    -> rotation via the refresh credential, or REJECTED
//	MALFORMED -> REJECTED (no store round trip)
//	REVOKED   -> REJECTED regardless of remaining natural lifetime
//	EXPIRED   -> rotation via the refresh credential, or REJECTED
//	VALID     -> claims become the authenticated context
func RunClassify(ctx context.Context, accessValue, refreshValue string, deps ClassifyDeps) Decision {
	if accessValue == "" {
		rotated := RunRotate(ctx, "", refreshValue, deps.Rotate)
		if rotated.Failure != FailureNone {
			return rejected(rotated.Failure, rotated.Err)
		}
		return rotatedDecision(rotated)
	}

	// Structural check first: a syntactically invalid credential never
	// costs a revocation lookup.
	if !token.WellFormed(accessValue) {
		return rejected(FailureMalformed, token.ErrMalformed)
	}

	revoked, err := deps.IsRevoked(ctx, accessValue)
	if err != nil {
		return rejected(FailureStore, err)
	}
	if revoked {
		return rejected(FailureRevoked, nil)
	}

	claims, err := deps.Verify(accessValue)
	switch {
	case err == nil:
		return Decision{
			State:       StateValid,
			Identity:    claims.Identity,
			Authority:   claims.Authority,
			AccessValue: accessValue,
		}
	case errors.Is(err, token.ErrExpired):
		if refreshValue == "" {
			return rejected(FailureExpired, err)
		}
		rotated := RunRotate(ctx, accessValue, refreshValue, deps.Rotate)
		if rotated.Failure != FailureNone {
			return rejected(rotated.Failure, rotated.Err)
		}
		return rotatedDecision(rotated)
	default:
		return rejected(FailureMalformed, err)
	}
}

func rejected(kind FailureKind, err error) Decision {
	return Decision{State: StateRejected, Failure: kind, Err: err}
}

func rotatedDecision(r RotateResult) Decision {
	return Decision{
		State:            StateRotated,
		Identity:         r.Identity,
		Authority:        r.Authority,
		AccessValue:      r.NewAccess,
		NewAccess:        r.NewAccess,
		NewRefresh:       r.NewRefresh,
		RefreshExpiresAt: r.RefreshExpiresAt,
	}
}
