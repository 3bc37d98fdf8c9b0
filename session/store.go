package session

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no live refresh record exists for the
	// requested identity or paired access value.
	ErrNotFound = errors.New("refresh record not found")
	// ErrRefreshMismatch is returned when the presented refresh credential
	// does not match the one on file. The caller must force re-login.
	ErrRefreshMismatch = errors.New("refresh credential mismatch")
	// ErrConflict is returned to rotation losers: the paired access value
	// changed between lookup and swap. Exactly one concurrent caller wins.
	ErrConflict = errors.New("rotation conflict")
	// ErrSessionExists is returned by Create without replace when a live
	// record already exists for the identity.
	ErrSessionExists = errors.New("session already exists")
	// ErrRecordCorrupt is returned when a stored record blob cannot be decoded.
	ErrRecordCorrupt = errors.New("refresh record corrupt")
	// ErrStoreUnavailable wraps backend transport failures.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
)

// Record is one identity's refresh session: the refresh credential hash,
// the hash of the access credential it is currently paired with, and the
// refresh expiry. At most one live Record exists per identity.
type Record struct {
	Identity    string `json:"identity"`
	Authority   string `json:"authority"`
	RefreshHash string `json:"refresh_hash"`
	AccessHash  string `json:"access_hash"`
	IssuedAt    int64  `json:"issued_at"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Expired reports whether the record's refresh credential is past expiry.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt <= now.Unix()
}

// RemainingTTL returns the refresh credential's lifetime left at now.
func (r *Record) RemainingTTL(now time.Time) time.Duration {
	return time.Unix(r.ExpiresAt, 0).Sub(now)
}

// RefreshStore is the durable mapping from an identity (and its paired
// access credential) to its refresh credential, with atomic rotation.
// Implemented by the Redis [Store] here and the GORM store in sqlstore.
type RefreshStore interface {
	// Create inserts a record. With replace it overwrites any prior record
	// for the same identity; without, it fails with ErrSessionExists.
	Create(ctx context.Context, rec Record, replace bool) error

	// LookupByAccess resolves the record currently paired with the given
	// access credential hash.
	LookupByAccess(ctx context.Context, accessHash string) (*Record, error)

	// Lookup resolves the record for an identity regardless of pairing.
	Lookup(ctx context.Context, identity string) (*Record, error)

	// Rotate atomically re-pairs the identity's record with a new access
	// credential. providedRefreshHash must match the stored refresh hash
	// (ErrRefreshMismatch otherwise) and observedAccessHash must match the
	// stored paired value as of the caller's lookup (ErrConflict
	// otherwise). newRefreshHash replaces the stored refresh hash; callers
	// keeping the refresh credential stable pass the provided hash again.
	Rotate(ctx context.Context, identity, providedRefreshHash, observedAccessHash, newAccessHash, newRefreshHash string) (*Record, error)

	// Delete removes the identity's record. Deleting a missing record is
	// not an error.
	Delete(ctx context.Context, identity string) error
}

// HashValue returns the canonical storage hash of a credential value.
// Stores never retain credential plaintext.
func HashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusConflict int64 = 3
	rotateStatusCorrupt  int64 = 4
	rotateStatusRotated  int64 = 5
)

const rotateScript = `
local record_key = KEYS[1]
local index_prefix = ARGV[1]
local provided_refresh = ARGV[2]
local observed_access = ARGV[3]
local new_access = ARGV[4]
local new_refresh = ARGV[5]
local now_unix = tonumber(ARGV[6])

local data = redis.call("GET", record_key)
if not data then
  return {0}
end

local ok, rec = pcall(cjson.decode, data)
if not ok or type(rec) ~= "table" or not rec.identity then
  return {4}
end

if tonumber(rec.expires_at) <= now_unix then
  redis.call("DEL", record_key)
  if rec.access_hash then
    redis.call("DEL", index_prefix .. rec.access_hash)
  end
  return {1}
end

if rec.refresh_hash ~= provided_refresh then
  return {2}
end

if rec.access_hash ~= observed_access then
  return {3}
end

local ttl = redis.call("PTTL", record_key)
if ttl <= 0 then
  redis.call("DEL", record_key)
  redis.call("DEL", index_prefix .. rec.access_hash)
  return {1}
end

redis.call("DEL", index_prefix .. rec.access_hash)
rec.access_hash = new_access
rec.refresh_hash = new_refresh
local updated = cjson.encode(rec)

redis.call("SET", record_key, updated, "PX", ttl)
redis.call("SET", index_prefix .. new_access, rec.identity, "PX", ttl)

return {5, updated}
`

var rotateLua = redis.NewScript(rotateScript)

const deleteScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local ok, rec = pcall(cjson.decode, data)
redis.call("DEL", KEYS[1])
if ok and type(rec) == "table" and rec.access_hash then
  redis.call("DEL", ARGV[1] .. rec.access_hash)
end
return 1
`

var deleteLua = redis.NewScript(deleteScript)

// Store is the Redis implementation of [RefreshStore]. Records live under
// <prefix>:<identity> with TTL bound to the refresh expiry; a secondary
// index <prefix>a:<accessHash> resolves the paired access credential back
// to its identity. Rotation is a Lua compare-and-swap.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a refresh [Store] backed by the given Redis client.
// prefix namespaces all keys; empty defaults to "mgs".
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "mgs"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) recordKey(identity string) string {
	return s.prefix + ":" + identity
}

func (s *Store) indexPrefix() string {
	return s.prefix + "a:"
}

// Create persists rec with TTL equal to its remaining refresh lifetime.
//
//	Performance: 1-2 Redis round trips (EXISTS guard + MULTI SET/SET).
func (s *Store) Create(ctx context.Context, rec Record, replace bool) error {
	now := time.Now()
	ttl := rec.RemainingTTL(now)
	if ttl <= 0 {
		return fmt.Errorf("%w: record already expired", ErrStoreUnavailable)
	}

	key := s.recordKey(rec.Identity)
	if !replace {
		n, err := s.redis.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if n > 0 {
			return ErrSessionExists
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	// A replaced record may leave its old access index behind; lookups
	// validate the pairing against the record, so the stale index is inert
	// until its TTL clears it.
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, ttl)
		pipe.Set(ctx, s.indexPrefix()+rec.AccessHash, rec.Identity, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Lookup fetches the identity's record, treating expired records as absent.
//
//	Performance: 1 Redis GET.
func (s *Store) Lookup(ctx context.Context, identity string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, ErrRecordCorrupt
	}
	if rec.Expired(time.Now()) {
		_ = s.Delete(ctx, identity)
		return nil, ErrNotFound
	}
	return &rec, nil
}

// LookupByAccess resolves the record paired with accessHash via the access
// index, re-validating the pairing against the record itself.
//
//	Performance: 2 Redis GETs.
func (s *Store) LookupByAccess(ctx context.Context, accessHash string) (*Record, error) {
	identity, err := s.redis.Get(ctx, s.indexPrefix()+accessHash).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, err := s.Lookup(ctx, identity)
	if err != nil {
		return nil, err
	}
	if rec.AccessHash != accessHash {
		// Stale index entry from an earlier pairing.
		return nil, ErrNotFound
	}
	return rec, nil
}

// Rotate runs the compare-and-swap script. See [RefreshStore.Rotate] for
// the match and conflict contract.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
//	Security: CAS prevents divergent concurrent rotations per identity.
func (s *Store) Rotate(ctx context.Context, identity, providedRefreshHash, observedAccessHash, newAccessHash, newRefreshHash string) (*Record, error) {
	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(identity)},
		s.indexPrefix(),
		providedRefreshHash,
		observedAccessHash,
		newAccessHash,
		newRefreshHash,
		time.Now().Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrStoreUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrStoreUnavailable)
	}

	switch code {
	case rotateStatusNotFound, rotateStatusExpired:
		return nil, ErrNotFound
	case rotateStatusMismatch:
		return nil, ErrRefreshMismatch
	case rotateStatusConflict:
		return nil, ErrConflict
	case rotateStatusCorrupt:
		return nil, ErrRecordCorrupt
	case rotateStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing rotated record payload", ErrStoreUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid rotated record payload", ErrStoreUnavailable)
		}
		var rec Record
		if err := json.Unmarshal(blob, &rec); err != nil {
			return nil, ErrRecordCorrupt
		}
		return &rec, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrStoreUnavailable)
	}
}

// Delete removes the identity's record and its access index entry.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) Delete(ctx context.Context, identity string) error {
	if _, err := deleteLua.Run(ctx, s.redis, []string{s.recordKey(identity)}, s.indexPrefix()).Result(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
