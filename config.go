package membergate

import (
	"fmt"
	"time"

	"github.com/membergate/membergate/token"
)

// JWTConfig holds credential signing and lifetime parameters.
type JWTConfig struct {
	// SigningMethod selects the HMAC algorithm. Empty defaults to HS512.
	SigningMethod token.SigningMethod
	// Key is the HMAC secret, at least 32 bytes. Supplied once at build
	// time; the engine never reads key material lazily.
	Key []byte
	// Issuer, when set, is stamped into and required from every credential.
	Issuer string
	// Leeway tolerates clock skew during expiry checks. At most 2 minutes.
	Leeway time.Duration

	// AccessTTL is the access credential lifetime. Keep it short; expiry
	// is the normal end of life, recovered by silent rotation.
	AccessTTL time.Duration
	// RefreshTTL is the refresh credential lifetime, the upper bound on how
	// long a session survives without re-login.
	RefreshTTL time.Duration
}

// SessionConfig holds refresh-session policy.
type SessionConfig struct {
	// RedisKeyPrefix namespaces refresh records in Redis. Empty defaults
	// to "mgs". Ignored when a custom refresh store is supplied.
	RedisKeyPrefix string
	// SingleSession makes Login overwrite the identity's previous session.
	// Off, a second Login while a session is live fails with
	// ErrSessionExists.
	SingleSession bool
	// RotateRefreshValue mints a replacement refresh credential on every
	// rotation, which turns replay of a superseded refresh credential into
	// a hard mismatch. Off, the refresh credential stays stable until its
	// own expiry or logout.
	RotateRefreshValue bool
}

// SecurityConfig holds throttling parameters.
type SecurityConfig struct {
	// MaxLoginAttempts is the failed-login budget per identity (and per IP
	// when EnableIPThrottle is on) within one cooldown window. Zero
	// disables login throttling.
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	EnableIPThrottle bool

	// EnableRefreshThrottle bounds silent rotation attempts per identity.
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshCooldown       time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events when the buffer is full instead of blocking
	// the request path. Dropped counts are observable via AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled       bool
	EnableLatency bool
}

// Config is the engine configuration. Zero values are filled from
// [DefaultConfig] fields only where documented; use DefaultConfig as the
// starting point and override.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// DefaultConfig returns the recommended baseline: HS512 signatures,
// 15 minute access credentials, 7 day refresh credentials, single session
// per identity, stable refresh values, and login throttling at 5 attempts
// per 15 minutes. The signing key must still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: token.MethodHS512,
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		},
		Session: SessionConfig{
			SingleSession: true,
		},
		Security: SecurityConfig{
			MaxLoginAttempts:   5,
			LoginCooldown:      15 * time.Minute,
			MaxRefreshAttempts: 30,
			RefreshCooldown:    time.Minute,
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

// Validate checks the configuration for faults that would otherwise only
// surface per-request. Key material is validated by the codec at build
// time.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("%w: non-positive access ttl", token.ErrSigningConfig)
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return fmt.Errorf("%w: refresh ttl must exceed access ttl", token.ErrSigningConfig)
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldown <= 0 {
		return fmt.Errorf("%w: login throttling requires a cooldown", token.ErrSigningConfig)
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 || c.Security.RefreshCooldown <= 0 {
			return fmt.Errorf("%w: refresh throttling requires attempts and cooldown", token.ErrSigningConfig)
		}
	}
	return nil
}

// cloneConfig deep-copies cfg so post-build mutation of the caller's
// struct, key bytes included, cannot change engine behavior.
func cloneConfig(cfg Config) Config {
	clone := cfg
	if cfg.JWT.Key != nil {
		clone.JWT.Key = make([]byte, len(cfg.JWT.Key))
		copy(clone.JWT.Key, cfg.JWT.Key)
	}
	return clone
}
