package membergate

import (
	"context"
	"io"

	"github.com/membergate/membergate/internal/audit"
)

// AuditEvent is the record emitted for logins, logouts, rotations,
// revocations, and rejections.
type AuditEvent = audit.Event

// AuditSink receives emitted audit events. Sinks run on the dispatcher
// goroutine, never on the request path.
type AuditSink = audit.Sink

// Audit event types carried in [AuditEvent].EventType.
const (
	AuditLogin            = audit.TypeLogin
	AuditLogout           = audit.TypeLogout
	AuditTokenRotated     = audit.TypeTokenRotated
	AuditTokenRevoked     = audit.TypeTokenRevoked
	AuditAuthRejected     = audit.TypeAuthRejected
	AuditRotationConflict = audit.TypeRotationConflict
)

// NewChannelAuditSink returns a sink delivering events on a buffered
// channel, for tests and in-process consumers.
func NewChannelAuditSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONAuditSink returns a sink writing one JSON event per line to w.
func NewJSONAuditSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	if event.IP == "" {
		event.IP = ClientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
