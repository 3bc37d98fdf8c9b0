package flows

import (
	"context"
	"errors"
	"time"

	"github.com/membergate/membergate/token"
)

// LogoutResult reports what a logout actually did.
type LogoutResult struct {
	Identity string
	Revoked  bool
	Err      error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Verify       func(tokenValue string) (*token.Claims, error)
	Revoke       func(ctx context.Context, accessValue string, ttl time.Duration) error
	DeleteRecord func(ctx context.Context, identity string) error
	Now          func() time.Time
}

// RunLogout blacklists the presented access credential for its remaining
// natural lifetime and deletes the identity's refresh record. An expired
// credential skips the blacklist (it is already dead) but still tears the
// session down, so logout is idempotent.
func RunLogout(ctx context.Context, accessValue string, deps LogoutDeps) LogoutResult {
	claims, err := deps.Verify(accessValue)
	if err != nil && !errors.Is(err, token.ErrExpired) {
		return LogoutResult{Err: err}
	}
	if claims == nil {
		return LogoutResult{Err: token.ErrMalformed}
	}

	res := LogoutResult{Identity: claims.Identity}

	if remaining := claims.Remaining(deps.Now()); remaining > 0 {
		if err := deps.Revoke(ctx, accessValue, remaining); err != nil {
			return LogoutResult{Identity: claims.Identity, Err: err}
		}
		res.Revoked = true
	}

	if err := deps.DeleteRecord(ctx, claims.Identity); err != nil {
		res.Err = err
	}
	return res
}
