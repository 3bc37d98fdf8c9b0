package membergate

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/membergate/membergate/internal/audit"
	"github.com/membergate/membergate/internal/flows"
	"github.com/membergate/membergate/internal/metrics"
	"github.com/membergate/membergate/session"
)

// Login authenticates a password and establishes a session: a fresh
// access/refresh pair plus a persisted refresh record. Under the
// single-session policy a prior session for the identity is replaced.
//
// Unknown identities and wrong passwords both map to
// [ErrInvalidCredentials], so callers cannot enumerate members.
func (e *Engine) Login(ctx context.Context, identity, password string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if identity == "" || password == "" {
		e.metrics.Inc(metrics.MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	result := flows.RunLogin(ctx, identity, password, e.loginDeps())
	if result.Failure != flows.LoginFailureNone {
		return nil, e.rejectLogin(ctx, identity, result)
	}

	e.metrics.Inc(metrics.MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		Timestamp: time.Now(),
		EventType: audit.TypeLogin,
		Identity:  identity,
		Success:   true,
	})

	return &TokenPair{
		AccessToken:      result.AccessToken,
		RefreshToken:     result.RefreshToken,
		RefreshExpiresAt: result.RefreshExpiresAt,
	}, nil
}

func (e *Engine) loginDeps() flows.LoginDeps {
	deps := flows.LoginDeps{
		ClientIP: ClientIPFromContext,
		LoadByIdentity: func(ctx context.Context, subject string) (string, string, error) {
			rec, err := e.identities.LoadByIdentity(ctx, subject)
			if err != nil {
				return "", "", err
			}
			return rec.Authority, rec.PasswordHash, nil
		},
		ComparePassword: func(passwordHash, password string) error {
			return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password))
		},
		IssueAccess:   e.issueAccess,
		IssueRefresh:  e.issueRefresh,
		HashValue:     session.HashValue,
		CreateRecord:  e.refresh.Create,
		RefreshTTL:    e.config.JWT.RefreshTTL,
		SingleSession: e.config.Session.SingleSession,
		Now:           time.Now,
	}
	if e.config.Security.MaxLoginAttempts > 0 {
		deps.CheckThrottle = e.limiter.CheckLogin
		deps.IncrementThrottle = e.limiter.IncrementLogin
		deps.ResetThrottle = e.limiter.ResetLogin
	}
	return deps
}

func (e *Engine) rejectLogin(ctx context.Context, identity string, result flows.LoginResult) error {
	var mapped error
	switch result.Failure {
	case flows.LoginFailureRateLimited:
		e.metrics.Inc(metrics.MetricLoginRateLimited)
		mapped = ErrLoginRateLimited
	case flows.LoginFailureUnknownIdentity, flows.LoginFailureBadCredentials:
		e.metrics.Inc(metrics.MetricLoginFailure)
		mapped = ErrInvalidCredentials
	case flows.LoginFailureSessionExists:
		mapped = ErrSessionExists
	case flows.LoginFailureIssue:
		mapped = result.Err
	case flows.LoginFailureStore:
		mapped = storeError(result.Err)
	default:
		e.metrics.Inc(metrics.MetricLoginFailure)
		mapped = ErrInvalidCredentials
	}

	e.emitAudit(ctx, AuditEvent{
		Timestamp: time.Now(),
		EventType: audit.TypeLogin,
		Identity:  identity,
		Success:   false,
		Reason:    mapped.Error(),
		Error:     errString(result.Err),
	})
	return mapped
}
