// Package monitor collects runtime health metrics: per-type event counters,
// queue depth, dispatch latency and process stats, exposed as a JSON-ready
// snapshot for the API.
package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks overall runtime performance.
type SystemMetrics struct {
	// DispatchLatency samples end-to-end handler time per event.
	DispatchLatency *LatencyHistogram
	// APILatency samples HTTP request time.
	APILatency *LatencyHistogram

	apiRequests     uint64
	apiErrors       uint64
	eventsProcessed uint64
	ticksProcessed  uint64
	barsProcessed   uint64
	ordersProcessed uint64
	tradesProcessed uint64
	signalsReceived uint64
	errorsCount     uint64

	startedAt time.Time
}

// LatencyHistogram tracks latency samples in a sliding window with lazily
// recomputed stats.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		DispatchLatency: NewLatencyHistogram(1000),
		APILatency:      NewLatencyHistogram(1000),
		startedAt:       time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99. Recomputes only when samples
// changed since the last call.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrementEvents increments the total processed event counter.
func (m *SystemMetrics) IncrementEvents() { atomic.AddUint64(&m.eventsProcessed, 1) }

// IncrementTicks increments the tick counter.
func (m *SystemMetrics) IncrementTicks() { atomic.AddUint64(&m.ticksProcessed, 1) }

// IncrementBars increments the bar counter.
func (m *SystemMetrics) IncrementBars() { atomic.AddUint64(&m.barsProcessed, 1) }

// IncrementOrders increments the order-event counter.
func (m *SystemMetrics) IncrementOrders() { atomic.AddUint64(&m.ordersProcessed, 1) }

// IncrementTrades increments the fill counter.
func (m *SystemMetrics) IncrementTrades() { atomic.AddUint64(&m.tradesProcessed, 1) }

// IncrementSignals increments the external-signal counter.
func (m *SystemMetrics) IncrementSignals() { atomic.AddUint64(&m.signalsReceived, 1) }

// IncrementErrors increments the handler-error counter.
func (m *SystemMetrics) IncrementErrors() { atomic.AddUint64(&m.errorsCount, 1) }

// IncrementAPI increments the HTTP request counter.
func (m *SystemMetrics) IncrementAPI() { atomic.AddUint64(&m.apiRequests, 1) }

// IncrementAPIErrors increments the HTTP error-response counter.
func (m *SystemMetrics) IncrementAPIErrors() { atomic.AddUint64(&m.apiErrors, 1) }

// MetricsSnapshot is a point-in-time view of the runtime's health.
type MetricsSnapshot struct {
	DispatchLatency LatencyStats `json:"dispatch_latency"`
	APILatency      LatencyStats `json:"api_latency"`
	APIRequests     uint64       `json:"api_requests"`
	APIErrors       uint64       `json:"api_errors"`
	EventsProcessed uint64       `json:"events_processed"`
	TicksProcessed  uint64       `json:"ticks_processed"`
	BarsProcessed   uint64       `json:"bars_processed"`
	OrdersProcessed uint64       `json:"orders_processed"`
	TradesProcessed uint64       `json:"trades_processed"`
	SignalsReceived uint64       `json:"signals_received"`
	ErrorsCount     uint64       `json:"errors_count"`
	QueueDepth      int          `json:"queue_depth"`
	UptimeSeconds   float64      `json:"uptime_seconds"`
	GoroutineCount  int          `json:"goroutine_count"`
	HeapAlloc       uint64       `json:"heap_alloc_bytes"`
	HeapSys         uint64       `json:"heap_sys_bytes"`
	Timestamp       time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot. queueDepth is passed
// in so the package does not depend on the engine.
func (m *SystemMetrics) GetSnapshot(queueDepth int) MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		DispatchLatency: m.DispatchLatency.Stats(),
		APILatency:      m.APILatency.Stats(),
		APIRequests:     atomic.LoadUint64(&m.apiRequests),
		APIErrors:       atomic.LoadUint64(&m.apiErrors),
		EventsProcessed: atomic.LoadUint64(&m.eventsProcessed),
		TicksProcessed:  atomic.LoadUint64(&m.ticksProcessed),
		BarsProcessed:   atomic.LoadUint64(&m.barsProcessed),
		OrdersProcessed: atomic.LoadUint64(&m.ordersProcessed),
		TradesProcessed: atomic.LoadUint64(&m.tradesProcessed),
		SignalsReceived: atomic.LoadUint64(&m.signalsReceived),
		ErrorsCount:     atomic.LoadUint64(&m.errorsCount),
		QueueDepth:      queueDepth,
		UptimeSeconds:   time.Since(m.startedAt).Seconds(),
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		HeapSys:         memStats.HeapSys,
		Timestamp:       time.Now(),
	}
}

// Timer measures one operation's duration into a histogram.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer starts a timer recording into h.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

// Stop records the elapsed time.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
