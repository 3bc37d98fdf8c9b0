package membergate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/membergate/membergate/internal/audit"
	"github.com/membergate/membergate/internal/metrics"
	"github.com/membergate/membergate/internal/rate"
	"github.com/membergate/membergate/revocation"
	"github.com/membergate/membergate/session"
	"github.com/membergate/membergate/token"
)

// Builder assembles an [Engine]. Usage:
//
//	engine, err := membergate.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithIdentityProvider(members).
//		Build()
type Builder struct {
	config     Config
	hasConfig  bool
	redis      redis.UniversalClient
	refresh    session.RefreshStore
	identities IdentityProvider
	auditSink  AuditSink
}

// New returns an empty [Builder].
func New() *Builder {
	return &Builder{}
}

// WithConfig sets the engine configuration. Without it, [DefaultConfig]
// is used (which still lacks a signing key, so Build will fail).
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	b.hasConfig = true
	return b
}

// WithRedis sets the Redis client backing revocation, throttling, and the
// default refresh store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRefreshStore replaces the default Redis refresh store, e.g. with the
// database-backed store in sqlstore. Revocation and throttling stay on
// Redis either way.
func (b *Builder) WithRefreshStore(store session.RefreshStore) *Builder {
	b.refresh = store
	return b
}

// WithIdentityProvider sets the member store collaborator. Required.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identities = p
	return b
}

// WithAuditSink sets the sink receiving audit events. Only consulted when
// auditing is enabled in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, constructs the signing codec, and
// wires the engine. Configuration faults surface here, never per-request.
func (b *Builder) Build() (*Engine, error) {
	cfg := b.config
	if !b.hasConfig {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("membergate: redis client is required")
	}
	if b.identities == nil {
		return nil, errors.New("membergate: identity provider is required")
	}

	codec, err := token.NewCodec(token.Config{
		Method: cfg.JWT.SigningMethod,
		Key:    cfg.JWT.Key,
		Issuer: cfg.JWT.Issuer,
		Leeway: cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	refresh := b.refresh
	if refresh == nil {
		refresh = session.NewStore(b.redis, cfg.Session.RedisKeyPrefix)
	}

	e := &Engine{
		config:      cfg,
		codec:       codec,
		refresh:     refresh,
		revocations: revocation.NewStore(b.redis),
		identities:  b.identities,
		metrics: metrics.New(metrics.Config{
			Enabled:       cfg.Metrics.Enabled,
			EnableLatency: cfg.Metrics.EnableLatency,
		}),
		limiter: rate.New(b.redis, rate.Config{
			EnableIPThrottle:        cfg.Security.EnableIPThrottle,
			EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.Security.LoginCooldown,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldown,
		}),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}
	return e, nil
}
