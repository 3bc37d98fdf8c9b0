package membergate

import "github.com/membergate/membergate/internal/metrics"

// MetricID identifies one engine counter or histogram.
type MetricID = metrics.MetricID

// MetricsSnapshot is a point-in-time copy of all engine metrics.
type MetricsSnapshot = metrics.Snapshot

// Metric identifiers exposed through [Engine.MetricsSnapshot].
const (
	MetricLoginSuccess     = metrics.MetricLoginSuccess
	MetricLoginFailure     = metrics.MetricLoginFailure
	MetricLoginRateLimited = metrics.MetricLoginRateLimited
	MetricAuthValid        = metrics.MetricAuthValid
	MetricAuthRotated      = metrics.MetricAuthRotated
	MetricAuthRejected     = metrics.MetricAuthRejected
	MetricAuthRevokedHit   = metrics.MetricAuthRevokedHit
	MetricRotationConflict = metrics.MetricRotationConflict
	MetricRefreshInvalid   = metrics.MetricRefreshInvalid
	MetricLogout           = metrics.MetricLogout
	MetricRevocation       = metrics.MetricRevocation
	MetricValidateLatency  = metrics.MetricValidateLatency
)
