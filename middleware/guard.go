// Package middleware provides the net/http request gatekeeper for the
// authentication engine: it extracts credentials from the request,
// classifies them, echoes rotated credentials back to the client, and
// rejects everything else with a single 401.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/membergate/membergate"
)

// DefaultRefreshCookie is the cookie carrying the refresh credential.
const DefaultRefreshCookie = "refresh-token"

type contextKey int

const authContextKey contextKey = iota

// Options tunes the gatekeeper. The zero value is usable.
type Options struct {
	// RefreshCookie is the refresh credential cookie name. Empty defaults
	// to [DefaultRefreshCookie].
	RefreshCookie string
	// CookiePath scopes re-issued refresh cookies. Empty defaults to "/".
	CookiePath string
	// CookieSecure marks re-issued refresh cookies Secure. On unless the
	// deployment terminates TLS nowhere (set InsecureCookies).
	InsecureCookies bool

	// AllowList holds path prefixes that bypass authentication entirely:
	// login, health, and other public endpoints. A prefix must match a
	// whole path segment, so "/public" does not admit "/publicity".
	AllowList []string

	// OnReject, when set, replaces the default 401 writer. It must write
	// the response itself.
	OnReject func(w http.ResponseWriter, r *http.Request, err error)
}

// Guard wraps next with the authentication gatekeeper. Requests passing
// classification proceed with the authenticated context attached; see
// [AuthFromContext]. After a silent rotation the response carries the
// replacement access credential in the Authorization header, a re-issued
// refresh cookie when the rotation policy minted one, and the
// X-Refresh-Expires-In header so clients can anticipate session end.
func Guard(engine *membergate.Engine, opts Options, next http.Handler) http.Handler {
	cookieName := opts.RefreshCookie
	if cookieName == "" {
		cookieName = DefaultRefreshCookie
	}
	cookiePath := opts.CookiePath
	if cookiePath == "" {
		cookiePath = "/"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed(opts.AllowList, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		accessValue := BearerToken(r)
		refreshValue := ""
		if c, err := r.Cookie(cookieName); err == nil {
			refreshValue = c.Value
		}

		ctx := membergate.WithClientIP(r.Context(), remoteIP(r))
		result, err := engine.Authenticate(ctx, accessValue, refreshValue)
		if err != nil {
			reject(w, r, opts, err)
			return
		}

		if result.Rotated {
			w.Header().Set("Authorization", "Bearer "+result.NewAccessToken)
			w.Header().Set("X-Refresh-Expires-In", strconv.FormatInt(result.RefreshExpiresIn(time.Now()), 10))
			if result.NewRefreshToken != "" {
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    result.NewRefreshToken,
					Path:     cookiePath,
					Expires:  result.RefreshExpiresAt,
					HttpOnly: true,
					Secure:   !opts.InsecureCookies,
					SameSite: http.SameSiteStrictMode,
				})
			}
		}

		next.ServeHTTP(w, r.WithContext(withAuth(ctx, result)))
	})
}

// AuthFromContext returns the authenticated context attached by [Guard].
func AuthFromContext(ctx context.Context) (*membergate.AuthResult, bool) {
	result, ok := ctx.Value(authContextKey).(*membergate.AuthResult)
	return result, ok
}

// BearerToken extracts the access credential from the Authorization
// header, or empty when the header is absent or not a bearer scheme.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func withAuth(ctx context.Context, result *membergate.AuthResult) context.Context {
	return context.WithValue(ctx, authContextKey, result)
}

func allowed(allowList []string, path string) bool {
	for _, prefix := range allowList {
		if path == prefix {
			return true
		}
		if strings.HasPrefix(path, prefix) && (strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/') {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func reject(w http.ResponseWriter, r *http.Request, opts Options, err error) {
	if opts.OnReject != nil {
		opts.OnReject(w, r, err)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
