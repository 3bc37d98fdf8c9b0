package membergate

import (
	"context"
	"errors"
	"time"

	"github.com/membergate/membergate/internal/audit"
	"github.com/membergate/membergate/internal/flows"
	"github.com/membergate/membergate/internal/metrics"
	"github.com/membergate/membergate/session"
	"github.com/membergate/membergate/token"
)

// Logout ends the session bound to accessValue: the credential is
// blacklisted for its remaining natural lifetime and the identity's
// refresh record is deleted, so neither the access credential nor silent
// rotation works afterwards. An already-expired credential still tears
// the session down; Logout is idempotent.
func (e *Engine) Logout(ctx context.Context, accessValue string) error {
	if err := e.ready(); err != nil {
		return err
	}

	result := flows.RunLogout(ctx, accessValue, flows.LogoutDeps{
		Verify:       e.codec.Verify,
		Revoke:       e.revocations.Revoke,
		DeleteRecord: e.refresh.Delete,
		Now:          time.Now,
	})
	if result.Err != nil && result.Identity == "" {
		// The credential never identified anyone; nothing to tear down.
		if errors.Is(result.Err, token.ErrMalformed) {
			return ErrTokenMalformed
		}
		return storeError(result.Err)
	}
	if result.Err != nil {
		return storeError(result.Err)
	}

	e.metrics.Inc(metrics.MetricLogout)
	if result.Revoked {
		e.metrics.Inc(metrics.MetricRevocation)
	}
	e.emitAudit(ctx, AuditEvent{
		Timestamp: time.Now(),
		EventType: audit.TypeLogout,
		Identity:  result.Identity,
		Success:   true,
	})
	return nil
}

// RevokeAccess blacklists a single access credential for its remaining
// natural lifetime without touching the session: silent rotation via the
// refresh credential keeps working. Use Logout to end the session.
// Revoking an expired credential is a no-op.
func (e *Engine) RevokeAccess(ctx context.Context, accessValue string) error {
	if err := e.ready(); err != nil {
		return err
	}

	claims, err := e.codec.Verify(accessValue)
	if err != nil && !errors.Is(err, token.ErrExpired) {
		return ErrTokenMalformed
	}
	if claims == nil {
		return ErrTokenMalformed
	}

	remaining := claims.Remaining(time.Now())
	if remaining <= 0 {
		return nil
	}
	if err := e.revocations.Revoke(ctx, accessValue, remaining); err != nil {
		return storeError(err)
	}

	e.metrics.Inc(metrics.MetricRevocation)
	e.emitAudit(ctx, AuditEvent{
		Timestamp: time.Now(),
		EventType: audit.TypeTokenRevoked,
		Identity:  claims.Identity,
		Success:   true,
	})
	return nil
}

// RevokeIdentity force-terminates an identity's session without its
// credentials in hand, for administrative lockout. The access credential
// currently paired with the session is blacklisted by its stored hash and
// the refresh record is deleted. Revoking an identity with no live
// session is a no-op.
//
// Access credentials issued before the current pairing (possible only
// outside the single-session policy) die by their own expiry.
func (e *Engine) RevokeIdentity(ctx context.Context, identity string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if identity == "" {
		return ErrIdentityNotFound
	}

	rec, err := e.refresh.Lookup(ctx, identity)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return storeError(err)
	}

	// The stored hash does not carry the credential's expiry, so the ban
	// runs for a full access lifetime, the upper bound on what could remain.
	if err := e.revocations.RevokeHash(ctx, rec.AccessHash, e.config.JWT.AccessTTL); err != nil {
		return storeError(err)
	}
	if err := e.refresh.Delete(ctx, identity); err != nil {
		return storeError(err)
	}

	e.metrics.Inc(metrics.MetricRevocation)
	e.emitAudit(ctx, AuditEvent{
		Timestamp: time.Now(),
		EventType: audit.TypeTokenRevoked,
		Identity:  identity,
		Success:   true,
	})
	return nil
}
