package membergate

import (
	"context"
	"time"

	"github.com/membergate/membergate/internal/audit"
	"github.com/membergate/membergate/internal/flows"
	"github.com/membergate/membergate/internal/metrics"
	"github.com/membergate/membergate/internal/rate"
	"github.com/membergate/membergate/revocation"
	"github.com/membergate/membergate/session"
	"github.com/membergate/membergate/token"
)

// Engine is the authentication core. Construct it with [Builder]; a zero
// Engine is not usable. All methods are safe for concurrent use.
type Engine struct {
	config      Config
	codec       *token.Codec
	refresh     session.RefreshStore
	revocations *revocation.Store
	limiter     *rate.Limiter
	metrics     *metrics.Metrics
	audit       *audit.Dispatcher
	identities  IdentityProvider
}

func (e *Engine) ready() error {
	if e == nil || e.codec == nil {
		return ErrEngineNotReady
	}
	return nil
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e != nil {
		e.audit.Close()
	}
}

// MetricsSnapshot returns a point-in-time copy of engine counters. Empty
// when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were shed under load.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Ping checks the Redis backend the revocation list depends on. A failing
// ping means authentication decisions cannot be made safely.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.revocations.Ping(ctx)
}

func (e *Engine) issueAccess(identity, authority string) (string, error) {
	return e.codec.Issue(identity, authority, e.config.JWT.AccessTTL)
}

func (e *Engine) issueRefresh(identity, authority string, ttl time.Duration) (string, error) {
	return e.codec.Issue(identity, authority, ttl)
}

// loadIdentity adapts the provider for rotation: only the authority comes
// back, never the password hash.
func (e *Engine) loadIdentity(ctx context.Context, subject string) (string, string, error) {
	rec, err := e.identities.LoadByIdentity(ctx, subject)
	if err != nil {
		return "", "", err
	}
	return rec.Identity, rec.Authority, nil
}

func (e *Engine) rotateDeps() flows.RotateDeps {
	deps := flows.RotateDeps{
		VerifyRefresh:      e.codec.Verify,
		HashValue:          session.HashValue,
		LookupByAccess:     e.refresh.LookupByAccess,
		Lookup:             e.refresh.Lookup,
		Rotate:             e.refresh.Rotate,
		LoadByIdentity:     e.loadIdentity,
		IssueAccess:        e.issueAccess,
		IssueRefresh:       e.issueRefresh,
		RotateRefreshValue: e.config.Session.RotateRefreshValue,
		Now:                time.Now,
	}
	if e.config.Security.EnableRefreshThrottle {
		deps.CheckThrottle = e.limiter.CheckRefresh
	}
	return deps
}

func (e *Engine) classifyDeps() flows.ClassifyDeps {
	return flows.ClassifyDeps{
		IsRevoked: e.revocations.IsRevoked,
		Verify:    e.codec.Verify,
		Rotate:    e.rotateDeps(),
	}
}
