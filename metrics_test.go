package stateauth

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledRecordsNothing(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false, EnableLatencyHistograms: true})
	m.Inc(MetricRefreshConflict)
	m.Observe(MetricValidateLatency, time.Millisecond)

	if got := m.Value(MetricRefreshConflict); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if m.LatencyEnabled() {
		t.Fatal("latency must follow the enabled switch")
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricValidateLatency, time.Second)
	if m.Value(MetricLoginSuccess) != 0 || m.Enabled() {
		t.Fatal("nil metrics must read as disabled and zero")
	}
	if snap := m.Snapshot(); snap.Counters == nil {
		t.Fatal("nil metrics snapshot must carry empty maps")
	}
}

func TestMetricsIgnoresUnknownIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(metricIDCount)
	m.Inc(metricIDCount + 7)
	m.Observe(MetricLoginSuccess, time.Millisecond)

	if got := m.Value(metricIDCount); got != 0 {
		t.Fatalf("out-of-range counter read %d", got)
	}
	if _, ok := m.Snapshot().Histograms[MetricLoginSuccess]; ok {
		t.Fatal("counters must not grow histograms")
	}
}

func TestMetricsConcurrentRefreshCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 16
	const perG = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			id := MetricRefreshSuccess
			if i%2 == 1 {
				id = MetricRefreshConflict
			}
			for j := 0; j < perG; j++ {
				m.Inc(id)
			}
		}(i)
	}
	wg.Wait()

	want := uint64(goroutines / 2 * perG)
	if got := m.Value(MetricRefreshSuccess); got != want {
		t.Fatalf("success: expected %d, got %d", want, got)
	}
	if got := m.Value(MetricRefreshConflict); got != want {
		t.Fatalf("conflict: expected %d, got %d", want, got)
	}
}

func TestMetricsLatencyBucketBounds(t *testing.T) {
	cases := []struct {
		d      time.Duration
		bucket int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{6 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{26 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{499 * time.Millisecond, 6},
		{501 * time.Millisecond, 7},
		{time.Minute, 7},
	}

	for _, tc := range cases {
		if got := bucketIndex(tc.d); got != tc.bucket {
			t.Errorf("bucketIndex(%s) = %d, want %d", tc.d, got, tc.bucket)
		}
	}

	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	for _, tc := range cases {
		m.Observe(MetricValidateLatency, tc.d)
	}
	buckets := m.Snapshot().Histograms[MetricValidateLatency]
	if len(buckets) != len(HistogramBucketBounds)+1 {
		t.Fatalf("expected %d buckets, got %d", len(HistogramBucketBounds)+1, len(buckets))
	}
	var total uint64
	for _, n := range buckets {
		total += n
	}
	if total != uint64(len(cases)) {
		t.Fatalf("expected %d observations, got %d", len(cases), total)
	}
	if buckets[7] != 2 {
		t.Fatalf("expected 2 observations in the unbounded bucket, got %d", buckets[7])
	}
}
