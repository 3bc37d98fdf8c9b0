package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCounters(t *testing.T) {
	m := New(Config{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricAuthRejected)
	m.Inc(MetricID(-1))
	m.Inc(MetricIDCount)

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 2 {
		t.Errorf("login success = %d, want 2", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricAuthRejected] != 1 {
		t.Errorf("auth rejected = %d, want 1", snap.Counters[MetricAuthRejected])
	}
	if snap.Counters[MetricLogout] != 0 {
		t.Errorf("logout = %d, want 0", snap.Counters[MetricLogout])
	}
}

func TestDisabledIsNoOp(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	m.ObserveValidateLatency(time.Millisecond)
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Error("nil metrics produced counters")
	}

	m = New(Config{})
	m.Inc(MetricLoginSuccess)
	if snap := m.Snapshot(); snap.Counters[MetricLoginSuccess] != 0 {
		t.Error("disabled metrics counted")
	}
}

func TestLatencyHistogram(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: true})

	m.ObserveValidateLatency(10 * time.Microsecond)
	m.ObserveValidateLatency(700 * time.Microsecond)
	m.ObserveValidateLatency(time.Second) // overflow bucket

	buckets := m.Snapshot().Histograms[MetricValidateLatency]
	if len(buckets) != len(latencyBucketsMicros)+1 {
		t.Fatalf("bucket count = %d, want %d", len(buckets), len(latencyBucketsMicros)+1)
	}

	var total uint64
	for _, b := range buckets {
		total += b
	}
	if total != 3 {
		t.Errorf("observations = %d, want 3", total)
	}
	if buckets[len(buckets)-1] != 1 {
		t.Errorf("overflow bucket = %d, want 1", buckets[len(buckets)-1])
	}
}

func TestConcurrentInc(t *testing.T) {
	m := New(Config{Enabled: true})

	const workers, perWorker = 8, 1000
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricAuthValid)
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot().Counters[MetricAuthValid]; got != workers*perWorker {
		t.Errorf("auth valid = %d, want %d", got, workers*perWorker)
	}
}
