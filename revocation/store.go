package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const keyPrefix = "mgr:"

// Store is a Redis-backed blacklist of revoked access credentials. Each
// entry carries a TTL equal to the credential's remaining natural lifetime
// at revocation time, so an entry never outlives the credential it bans
// and the store never grows unbounded.
type Store struct {
	redis redis.UniversalClient
}

// NewStore creates a revocation [Store] backed by the given Redis client.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{redis: client}
}

func entryKey(accessValue string) string {
	sum := sha256.Sum256([]byte(accessValue))
	return keyPrefix + base64.RawURLEncoding.EncodeToString(sum[:])
}

// Revoke inserts accessValue with the given TTL. Callers pass the
// credential's remaining lifetime, not a fixed window. A non-positive TTL
// is a no-op: the credential is already dead by its own expiry.
//
//	Performance: 1 Redis SET PX.
func (s *Store) Revoke(ctx context.Context, accessValue string, ttl time.Duration) error {
	if accessValue == "" || ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, entryKey(accessValue), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeHash inserts a pre-hashed credential value. The hash format is the
// canonical storage hash (base64url SHA-256), so entries written here land
// in the same key space IsRevoked consults for plaintext values.
func (s *Store) RevokeHash(ctx context.Context, accessHash string, ttl time.Duration) error {
	if accessHash == "" || ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, keyPrefix+accessHash, 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether accessValue is currently blacklisted.
//
//	Performance: 1 Redis EXISTS.
func (s *Store) IsRevoked(ctx context.Context, accessValue string) (bool, error) {
	if accessValue == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, entryKey(accessValue)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
