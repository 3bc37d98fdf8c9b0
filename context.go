package membergate

import "context"

type contextKey int

const clientIPKey contextKey = iota

// WithClientIP attaches the caller's remote address to ctx. Login uses it
// for per-IP throttling and audit events; it is optional everywhere.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the remote address attached by
// [WithClientIP], or empty.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
