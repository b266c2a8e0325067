package observability

import (
	"strings"
	"testing"
	"time"
)

func newTestMetrics() *Metrics {
	return &Metrics{
		practiceUpdates: NewCounterVec("sg_practice_updates_total", "Practice updates by status.", []string{"status"}),
		practiceLatency: NewHistogramVec("sg_practice_update_duration_seconds", "Latency.", []string{"status"}, []float64{0.1, 1}),
		casConflicts:    NewCounter("sg_version_conflicts_total", "Conflicts."),
		casRetries:      NewCounter("sg_update_retries_total", "Retries."),
		diagnosisTotal:  NewCounterVec("sg_diagnosis_total", "Diagnoses.", []string{"source"}),
		insightRequests: NewCounterVec("sg_insight_requests_total", "Insight calls.", []string{"provider", "status"}),
		insightLatency:  NewHistogramVec("sg_insight_request_duration_seconds", "Latency.", []string{"provider"}, []float64{1, 10}),
		snapshotCache:   NewCounterVec("sg_snapshot_cache_total", "Cache lookups.", []string{"result"}),
		consumerLag:     NewGauge("sg_practice_stream_pending", "Pending."),
		pgStats:         NewGaugeVec("sg_pg_connections", "Pool.", []string{"state"}),
		redisUp:         NewGauge("sg_redis_up", "Redis."),
	}
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.ObservePracticeUpdate("ok", time.Millisecond)
	m.IncConflict()
	m.IncRetry()
	m.IncDiagnosis("ai")
	m.ObserveInsightCall("openai", "ok", time.Second)
	m.IncSnapshotCache("hit")
	if err := m.WritePrometheus(nil); err != nil {
		t.Fatalf("nil metrics must write nothing: %v", err)
	}
}

func TestMetrics_ExpositionContainsSeries(t *testing.T) {
	m := newTestMetrics()
	m.ObservePracticeUpdate("ok", 50*time.Millisecond)
	m.ObservePracticeUpdate("ok", 50*time.Millisecond)
	m.ObservePracticeUpdate("conflict_exhausted", 200*time.Millisecond)
	m.IncConflict()
	if m.casConflicts.Value() != 1 {
		t.Fatalf("expected conflict counter 1, got %v", m.casConflicts.Value())
	}
	if m.casRetries.Value() != 0 {
		t.Fatalf("expected retry counter untouched, got %v", m.casRetries.Value())
	}
	m.IncDiagnosis("fallback")
	m.ObserveInsightCall("openai", "error", 2*time.Second)
	m.IncSnapshotCache("miss")
	m.consumerLag.Set(7)

	var b strings.Builder
	if err := m.WritePrometheus(&b); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	out := b.String()

	for _, want := range []string{
		`sg_practice_updates_total{status="ok"} 2`,
		`sg_practice_updates_total{status="conflict_exhausted"} 1`,
		"sg_version_conflicts_total 1",
		`sg_diagnosis_total{source="fallback"} 1`,
		`sg_insight_requests_total{provider="openai",status="error"} 1`,
		`sg_snapshot_cache_total{result="miss"} 1`,
		"sg_practice_stream_pending 7",
		`sg_practice_update_duration_seconds_bucket{status="ok",le="+Inf"} 2`,
		"# TYPE sg_practice_updates_total counter",
		"# TYPE sg_practice_stream_pending gauge",
		"# TYPE sg_practice_update_duration_seconds histogram",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q in:\n%s", want, out)
		}
	}
}

func TestHistogramVec_BucketCounts(t *testing.T) {
	h := NewHistogramVec("sg_test_seconds", "Test.", []string{"status"}, []float64{0.1, 1})
	h.Observe(0.05, "ok")
	h.Observe(0.5, "ok")
	h.Observe(3, "ok")

	var b strings.Builder
	if err := h.WritePrometheus(&b); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	out := b.String()

	for _, want := range []string{
		`sg_test_seconds_bucket{status="ok",le="0.1"} 1`,
		`sg_test_seconds_bucket{status="ok",le="1"} 2`,
		`sg_test_seconds_bucket{status="ok",le="+Inf"} 3`,
		`sg_test_seconds_count{status="ok"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("histogram missing %q in:\n%s", want, out)
		}
	}
}

func TestEnabled_ParsesCommonTruthyValues(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"false": false,
		"0":     false,
		"true":  true,
		"TRUE":  true,
		"1":     true,
		"yes":   true,
		"on":    true,
		"off":   false,
	}
	for val, want := range cases {
		t.Setenv("METRICS_ENABLED", val)
		if got := Enabled(); got != want {
			t.Fatalf("Enabled() with %q = %v, want %v", val, got, want)
		}
	}
}
