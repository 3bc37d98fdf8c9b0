package membergate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/membergate/membergate/internal/audit"
	"github.com/membergate/membergate/internal/flows"
	"github.com/membergate/membergate/internal/metrics"
	"github.com/membergate/membergate/internal/rate"
)

// Authenticate classifies one request's credentials and returns the
// authenticated context. A valid access credential passes with one
// revocation check and no refresh store access. An absent or expired
// access credential triggers silent rotation via refreshValue; a
// malformed or revoked one is rejected outright.
//
// Every rejection is an error from the sentinel taxonomy in errors.go;
// gateways collapse them all into a single 401 so the distinctions stay
// internal.
func (e *Engine) Authenticate(ctx context.Context, accessValue, refreshValue string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if accessValue == "" && refreshValue == "" {
		e.metrics.Inc(metrics.MetricAuthRejected)
		return nil, ErrUnauthorized
	}

	start := time.Now()
	decision := flows.RunClassify(ctx, accessValue, refreshValue, e.classifyDeps())
	e.metrics.ObserveValidateLatency(time.Since(start))

	if decision.Rejected() {
		return nil, e.rejectAuth(ctx, decision)
	}

	result := &AuthResult{
		Identity:    decision.Identity,
		Authority:   decision.Authority,
		AccessToken: decision.AccessValue,
	}

	switch decision.State {
	case flows.StateValid:
		e.metrics.Inc(metrics.MetricAuthValid)
	case flows.StateRotated:
		result.Rotated = true
		result.NewAccessToken = decision.NewAccess
		result.NewRefreshToken = decision.NewRefresh
		result.RefreshExpiresAt = decision.RefreshExpiresAt
		e.metrics.Inc(metrics.MetricAuthRotated)
		e.emitAudit(ctx, AuditEvent{
			Timestamp: time.Now(),
			EventType: audit.TypeTokenRotated,
			Identity:  decision.Identity,
			Success:   true,
		})
	}
	return result, nil
}

// Refresh mints a new access credential from a refresh credential alone,
// for clients calling an explicit reissue endpoint instead of relying on
// in-flight rotation. The returned pair's RefreshToken is empty when the
// stable-refresh policy is in force.
func (e *Engine) Refresh(ctx context.Context, refreshValue string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	rotated := flows.RunRotate(ctx, "", refreshValue, e.rotateDeps())
	if rotated.Failure != flows.FailureNone {
		return nil, e.rejectAuth(ctx, flows.Decision{
			State:   flows.StateRejected,
			Failure: rotated.Failure,
			Err:     rotated.Err,
		})
	}

	e.metrics.Inc(metrics.MetricAuthRotated)
	e.emitAudit(ctx, AuditEvent{
		Timestamp: time.Now(),
		EventType: audit.TypeTokenRotated,
		Identity:  rotated.Identity,
		Success:   true,
	})

	return &TokenPair{
		AccessToken:      rotated.NewAccess,
		RefreshToken:     rotated.NewRefresh,
		RefreshExpiresAt: rotated.RefreshExpiresAt,
	}, nil
}

// rejectAuth maps a rejected decision onto the sentinel taxonomy and
// records metrics and audit for it.
func (e *Engine) rejectAuth(ctx context.Context, decision flows.Decision) error {
	e.metrics.Inc(metrics.MetricAuthRejected)

	var mapped error
	eventType := audit.TypeAuthRejected

	switch decision.Failure {
	case flows.FailureMalformed:
		mapped = ErrTokenMalformed
	case flows.FailureRevoked:
		e.metrics.Inc(metrics.MetricAuthRevokedHit)
		mapped = ErrTokenRevoked
	case flows.FailureExpired:
		mapped = ErrTokenExpired
	case flows.FailureRefreshInvalid:
		e.metrics.Inc(metrics.MetricRefreshInvalid)
		if errors.Is(decision.Err, rate.ErrRateLimited) {
			mapped = ErrRefreshRateLimited
		} else {
			mapped = ErrRefreshInvalid
		}
	case flows.FailureRefreshMismatch:
		e.metrics.Inc(metrics.MetricRefreshInvalid)
		mapped = ErrRefreshMismatch
	case flows.FailureRotationConflict:
		e.metrics.Inc(metrics.MetricRotationConflict)
		eventType = audit.TypeRotationConflict
		mapped = ErrRotationConflict
	case flows.FailureIdentity:
		// The subject vanished between login and rotation. Force re-login.
		mapped = ErrRefreshInvalid
	case flows.FailureStore:
		mapped = storeError(decision.Err)
	case flows.FailureIssue:
		mapped = decision.Err
	default:
		mapped = ErrUnauthorized
	}

	e.emitAudit(ctx, AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Identity:  decision.Identity,
		Success:   false,
		Reason:    mapped.Error(),
		Error:     errString(decision.Err),
	})
	return mapped
}

// storeError normalizes backend failures under ErrStoreUnavailable while
// preserving the cause in the message.
func storeError(err error) error {
	if err == nil {
		return ErrStoreUnavailable
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
