package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/skillgraph-backend/internal/platform/envutil"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
)

// Metrics exposes the rule-engine and insight counters in Prometheus
// exposition format. All primitives are safe on a nil receiver so call
// sites never guard on METRICS_ENABLED.
type Metrics struct {
	practiceUpdates *CounterVec
	practiceLatency *HistogramVec
	casConflicts    *Counter
	casRetries      *Counter

	diagnosisTotal  *CounterVec
	insightRequests *CounterVec
	insightLatency  *HistogramVec

	snapshotCache *CounterVec
	consumerLag   *Gauge

	pgStats *GaugeVec
	redisUp *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Init() *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = &Metrics{
			practiceUpdates: NewCounterVec("sg_practice_updates_total", "Practice updates by status.", []string{"status"}),
			practiceLatency: NewHistogramVec(
				"sg_practice_update_duration_seconds",
				"Practice update latency in seconds by status.",
				[]string{"status"},
				[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			),
			casConflicts:   NewCounter("sg_version_conflicts_total", "Conditional writes lost to a concurrent update."),
			casRetries:     NewCounter("sg_update_retries_total", "Practice update attempts beyond the first."),
			diagnosisTotal: NewCounterVec("sg_diagnosis_total", "Initial diagnoses by analysis source.", []string{"source"}),
			insightRequests: NewCounterVec(
				"sg_insight_requests_total",
				"Insight provider calls by provider/status.",
				[]string{"provider", "status"},
			),
			insightLatency: NewHistogramVec(
				"sg_insight_request_duration_seconds",
				"Insight provider latency in seconds by provider.",
				[]string{"provider"},
				[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			),
			snapshotCache: NewCounterVec("sg_snapshot_cache_total", "Snapshot cache lookups by result.", []string{"result"}),
			consumerLag:   NewGauge("sg_practice_stream_pending", "Pending messages in the practice stream group."),
			pgStats:       NewGaugeVec("sg_pg_connections", "Postgres connection pool stats.", []string{"state"}),
			redisUp:       NewGauge("sg_redis_up", "Redis reachability (1 up, 0 down)."),
		}
	})
	return instance
}

// ObservePracticeUpdate satisfies the engine's metrics hook.
func (m *Metrics) ObservePracticeUpdate(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.practiceUpdates.Inc(status)
	m.practiceLatency.Observe(dur.Seconds(), status)
}

func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.casConflicts.Inc()
}

func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.casRetries.Inc()
}

func (m *Metrics) IncDiagnosis(source string) {
	if m == nil {
		return
	}
	m.diagnosisTotal.Inc(source)
}

// ObserveInsightCall satisfies the insight provider observer hook.
func (m *Metrics) ObserveInsightCall(provider, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.insightRequests.Inc(provider, status)
	m.insightLatency.Observe(dur.Seconds(), provider)
}

func (m *Metrics) IncSnapshotCache(result string) {
	if m == nil {
		return
	}
	m.snapshotCache.Inc(result)
}

// StartServer serves the exposition endpoint on METRICS_ADDR until ctx is
// canceled. No-op when the address is unset.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger) {
	if m == nil {
		return
	}
	addr := envutil.String("METRICS_ADDR", "")
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

// StartCollectors samples infrastructure health on a fixed interval.
func (m *Metrics) StartCollectors(ctx context.Context, db *gorm.DB, rdb *goredis.Client, stream, group string, log *logger.Logger) {
	if m == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.collectOnce(ctx, db, rdb, stream, group, log)
			}
		}
	}()
}

func (m *Metrics) collectOnce(ctx context.Context, db *gorm.DB, rdb *goredis.Client, stream, group string, log *logger.Logger) {
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			stats := sqlDB.Stats()
			m.pgStats.Set(float64(stats.OpenConnections), "open")
			m.pgStats.Set(float64(stats.InUse), "in_use")
			m.pgStats.Set(float64(stats.Idle), "idle")
		}
	}
	if rdb != nil {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(cctx).Err(); err != nil {
			m.redisUp.Set(0)
		} else {
			m.redisUp.Set(1)
			if stream != "" && group != "" {
				if pending, err := rdb.XPending(cctx, stream, group).Result(); err == nil {
					m.consumerLag.Set(float64(pending.Count))
				} else if log != nil {
					log.Debug("metrics: xpending failed", "error", err)
				}
			}
		}
		cancel()
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.practiceUpdates,
		m.practiceLatency,
		m.casConflicts,
		m.casRetries,
		m.diagnosisTotal,
		m.insightRequests,
		m.insightLatency,
		m.snapshotCache,
		m.consumerLag,
		m.pgStats,
		m.redisUp,
	}
	for _, wr := range writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

// ---- lightweight metric primitives (Prometheus exposition) ----

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl]++
	c.mu.Unlock()
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl] += v
	c.mu.Unlock()
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type Counter struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val++
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", c.name, c.val)
	return err
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", g.name, g.val)
	return err
}

type GaugeVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	lbl := labelString(g.labelNames, values)
	g.mu.Lock()
	g.values[lbl] = v
	g.mu.Unlock()
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for k, v := range g.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", g.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	total   uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{
			buckets: h.buckets,
			counts:  make([]uint64, len(h.buckets)+1),
		}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range hist.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
	hist.counts[len(hist.counts)-1]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s histogram\n", h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, v := range h.values {
		for i, b := range v.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.counts[len(v.counts)-1]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n", h.name, k, v.sum); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %d\n", h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(val))
		b.WriteString("\"")
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}

func withLe(labels string, le string) string {
	le = escapeLabel(le)
	if labels == "" || labels == "{}" {
		return "{le=\"" + le + "\"}"
	}
	if strings.HasSuffix(labels, "}") {
		return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
	}
	return "{le=\"" + le + "\"}"
}
