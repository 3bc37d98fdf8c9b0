package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the HMAC algorithm used for credential signatures.
type SigningMethod string

const (
	// MethodHS256 signs credentials with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
	// MethodHS512 signs credentials with HMAC-SHA512. This is the default.
	MethodHS512 SigningMethod = "hs512"
)

const minKeySize = 32

const authorityClaim = "auth"

var (
	// ErrMalformed is returned by Verify for credentials with a broken
	// structure, an invalid signature, or an unexpected algorithm.
	ErrMalformed = errors.New("malformed credential")
	// ErrExpired is returned by Verify for authentic credentials whose
	// expiry has passed. The decoded claims are returned alongside.
	ErrExpired = errors.New("expired credential")
	// ErrSigningConfig is returned by NewCodec on invalid key material or
	// an unknown signing method. It is a startup fault, never per-request.
	ErrSigningConfig = errors.New("invalid signing configuration")
)

// Config holds the immutable signing parameters for a [Codec]. The key is
// supplied once at construction; there is no lazily populated key state.
type Config struct {
	Method SigningMethod
	Key    []byte
	Issuer string
	Leeway time.Duration
}

// Codec signs and verifies compact access and refresh credentials. A
// credential is self-contained: validity is decidable from its bytes plus
// the signing key, with no storage lookup.
//
// Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	config Config
}

// Claims is the decoded content of a verified credential.
type Claims struct {
	Identity  string
	Authority string
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenID   string
}

// Remaining returns the credential's natural lifetime left at now.
// Non-positive means the credential is already dead.
func (c *Claims) Remaining(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

type credentialClaims struct {
	Authority string `json:"auth,omitempty"`
	jwt.RegisteredClaims
}

// WellFormed reports whether tokenValue has the structural shape of a
// compact signed credential: three non-empty base64url segments. It proves
// nothing about authenticity; it exists so callers can reject garbage
// before spending a store round trip on a revocation check.
func WellFormed(tokenValue string) bool {
	parts := strings.Split(tokenValue, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		if _, err := base64.RawURLEncoding.DecodeString(part); err != nil {
			return false
		}
	}
	return true
}

// NewCodec validates cfg and returns a [Codec]. A missing or short key and
// an unknown method are configuration faults reported as [ErrSigningConfig].
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Method == "" {
		cfg.Method = MethodHS512
	}
	switch cfg.Method {
	case MethodHS256, MethodHS512:
	default:
		return nil, fmt.Errorf("%w: unsupported method %q", ErrSigningConfig, cfg.Method)
	}
	if len(cfg.Key) < minKeySize {
		return nil, fmt.Errorf("%w: key must be at least %d bytes", ErrSigningConfig, minKeySize)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("%w: leeway out of range", ErrSigningConfig)
	}

	return &Codec{config: cfg}, nil
}

// Issue builds and signs a credential for identity with a single authority
// label and the given lifetime.
func (c *Codec) Issue(identity, authority string, ttl time.Duration) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("%w: empty subject", ErrSigningConfig)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: non-positive ttl", ErrSigningConfig)
	}

	now := time.Now()
	claims := credentialClaims{
		Authority: authority,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	if c.config.Issuer != "" {
		claims.Issuer = c.config.Issuer
	}

	return jwt.NewWithClaims(c.method(), claims).SignedString(c.config.Key)
}

// Verify checks signature and expiry and returns the decoded claims.
// Verification is pure: it never consults external storage.
//
// On [ErrExpired] the claims are returned as well, so callers can read the
// subject of an authentic-but-expired credential during rotation.
func (c *Codec) Verify(tokenValue string) (*Claims, error) {
	if strings.TrimSpace(tokenValue) == "" {
		return nil, ErrMalformed
	}

	parser := c.parser()
	parsed, err := parser.ParseWithClaims(tokenValue, &credentialClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.config.Key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// Signature checked before expiry by the parser; an expired
			// error still means the credential is authentic.
			if parsed != nil {
				if cc, ok := parsed.Claims.(*credentialClaims); ok && cc.ExpiresAt != nil {
					return toClaims(cc), ErrExpired
				}
			}
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}

	cc, ok := parsed.Claims.(*credentialClaims)
	if !ok || !parsed.Valid || cc.Subject == "" || cc.ExpiresAt == nil {
		return nil, ErrMalformed
	}

	return toClaims(cc), nil
}

func (c *Codec) parser() *jwt.Parser {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	return jwt.NewParser(options...)
}

func (c *Codec) method() jwt.SigningMethod {
	if c.config.Method == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodHS512
}

func toClaims(cc *credentialClaims) *Claims {
	claims := &Claims{
		Identity:  cc.Subject,
		Authority: cc.Authority,
		ExpiresAt: cc.ExpiresAt.Time,
		TokenID:   cc.ID,
	}
	if cc.IssuedAt != nil {
		claims.IssuedAt = cc.IssuedAt.Time
	}
	return claims
}
