package flows

import (
	"context"
	"errors"
	"time"

	"github.com/membergate/membergate/session"
)

// LoginFailureKind classifies login failures for root-level error mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureUnknownIdentity
	LoginFailureBadCredentials
	LoginFailureIssue
	LoginFailureSessionExists
	LoginFailureStore
)

// LoginResult carries the issued credential pair or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error

	Identity         string
	Authority        string
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	CheckThrottle     func(ctx context.Context, identity, ip string) error
	IncrementThrottle func(ctx context.Context, identity, ip string) error
	ResetThrottle     func(ctx context.Context, identity, ip string) error
	ClientIP          func(ctx context.Context) string

	LoadByIdentity func(ctx context.Context, subject string) (authority, passwordHash string, err error)
	ComparePassword func(passwordHash, password string) error

	IssueAccess  func(identity, authority string) (string, error)
	IssueRefresh func(identity, authority string, ttl time.Duration) (string, error)
	HashValue    func(value string) string
	CreateRecord func(ctx context.Context, rec session.Record, replace bool) error

	RefreshTTL    time.Duration
	SingleSession bool
	Now           func() time.Time
}

// RunLogin authenticates a password, mints an access/refresh pair, and
// persists the refresh record, overwriting the identity's previous session
// when the single-session policy is on.
func RunLogin(ctx context.Context, identity, password string, deps LoginDeps) LoginResult {
	ip := ""
	if deps.ClientIP != nil {
		ip = deps.ClientIP(ctx)
	}

	if deps.CheckThrottle != nil {
		if err := deps.CheckThrottle(ctx, identity, ip); err != nil {
			return loginFailure(LoginFailureRateLimited, err)
		}
	}

	authority, passwordHash, err := deps.LoadByIdentity(ctx, identity)
	if err != nil {
		_ = deps.incrementThrottle(ctx, identity, ip)
		return loginFailure(LoginFailureUnknownIdentity, err)
	}

	if err := deps.ComparePassword(passwordHash, password); err != nil {
		_ = deps.incrementThrottle(ctx, identity, ip)
		return loginFailure(LoginFailureBadCredentials, err)
	}

	access, err := deps.IssueAccess(identity, authority)
	if err != nil {
		return loginFailure(LoginFailureIssue, err)
	}

	refresh, err := deps.IssueRefresh(identity, authority, deps.RefreshTTL)
	if err != nil {
		return loginFailure(LoginFailureIssue, err)
	}

	now := deps.Now()
	refreshExpiry := now.Add(deps.RefreshTTL)
	rec := session.Record{
		Identity:    identity,
		Authority:   authority,
		RefreshHash: deps.HashValue(refresh),
		AccessHash:  deps.HashValue(access),
		IssuedAt:    now.Unix(),
		ExpiresAt:   refreshExpiry.Unix(),
	}

	if err := deps.CreateRecord(ctx, rec, deps.SingleSession); err != nil {
		if errors.Is(err, session.ErrSessionExists) {
			return loginFailure(LoginFailureSessionExists, err)
		}
		return loginFailure(LoginFailureStore, err)
	}

	if deps.ResetThrottle != nil {
		_ = deps.ResetThrottle(ctx, identity, ip)
	}

	return LoginResult{
		Identity:         identity,
		Authority:        authority,
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiry,
	}
}

func (deps LoginDeps) incrementThrottle(ctx context.Context, identity, ip string) error {
	if deps.IncrementThrottle == nil {
		return nil
	}
	return deps.IncrementThrottle(ctx, identity, ip)
}

func loginFailure(kind LoginFailureKind, err error) LoginResult {
	return LoginResult{Failure: kind, Err: err}
}
