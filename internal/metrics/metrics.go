package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricAuthValid
	MetricAuthRotated
	MetricAuthRejected
	MetricAuthRevokedHit
	MetricRotationConflict
	MetricRefreshInvalid
	MetricLogout
	MetricRevocation
	MetricValidateLatency

	MetricIDCount
)

// Latency histogram bucket upper bounds, microseconds. The last bucket is
// the overflow.
var latencyBucketsMicros = [...]int64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000}

// Config controls which metric families are recorded.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds atomic counters and an optional validate-latency
// histogram. All methods are safe for concurrent use; a nil or disabled
// Metrics is a no-op.
type Metrics struct {
	cfg      Config
	counters [MetricIDCount]atomic.Uint64
	latency  [len(latencyBucketsMicros) + 1]atomic.Uint64
}

// Snapshot is a point-in-time deep copy of all metrics.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// New creates a [Metrics] instance. When cfg.Enabled is false all
// operations are no-ops.
func New(cfg Config) *Metrics {
	return &Metrics{cfg: cfg}
}

// Inc increments a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.cfg.Enabled || id < 0 || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// ObserveValidateLatency records one validate duration into the histogram.
func (m *Metrics) ObserveValidateLatency(d time.Duration) {
	if m == nil || !m.cfg.Enabled || !m.cfg.EnableLatency {
		return
	}
	micros := d.Microseconds()
	for i, bound := range latencyBucketsMicros {
		if micros <= bound {
			m.latency[i].Add(1)
			return
		}
	}
	m.latency[len(latencyBucketsMicros)].Add(1)
}

// Snapshot returns a deep copy of all counters and histograms.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Counters:   make(map[MetricID]uint64, MetricIDCount),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	if m == nil || !m.cfg.Enabled {
		return snap
	}

	for id := MetricID(0); id < MetricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	if m.cfg.EnableLatency {
		buckets := make([]uint64, len(m.latency))
		for i := range m.latency {
			buckets[i] = m.latency[i].Load()
		}
		snap.Histograms[MetricValidateLatency] = buckets
	}
	return snap
}
