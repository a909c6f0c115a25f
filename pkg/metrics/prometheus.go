// Package metrics provides Prometheus metrics for the venue statistics service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Aggregation
	outcomesRecorded  *prometheus.CounterVec
	outcomesDuplicate prometheus.Counter
	outcomeLatency    prometheus.Histogram
	partialWrites     *prometheus.CounterVec
	pointsAwarded     *prometheus.CounterVec

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec
	storeRecords *prometheus.GaugeVec

	// Ranking
	rankingBatches    prometheus.Counter
	rankingCandidates prometheus.Histogram
	rankingDuration   prometheus.Histogram

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActive            prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Stream
	streamMessages *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "venuestats",
		subsystem:        "aggregator",
		histogramBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.outcomesRecorded = auto.NewCounterVec(m.counterOpts("outcomes_recorded_total", "Reservation outcomes applied to the aggregates, by kind"), []string{"kind"})
	m.outcomesDuplicate = auto.NewCounter(m.counterOpts("outcomes_duplicate_total", "Outcome events dropped as duplicates"))
	m.outcomeLatency = auto.NewHistogram(m.histogramOpts("outcome_latency_milliseconds", "Time to apply one outcome to the user and venue aggregates", m.histogramBuckets))
	m.partialWrites = auto.NewCounterVec(m.counterOpts("partial_writes_total", "Pair writes where only one half committed, by compensation result"), []string{"compensated"})
	m.pointsAwarded = auto.NewCounterVec(m.counterOpts("points_awarded_total", "Absolute points added to the ledger, by sign"), []string{"sign"})

	m.storeLatency = auto.NewHistogramVec(m.histogramOpts("store_latency_milliseconds", "Latency of stat store operations", m.histogramBuckets), []string{"backend", "op"})
	m.storeErrors = auto.NewCounterVec(m.counterOpts("store_errors_total", "Failed stat store operations"), []string{"backend", "op"})
	m.storeRecords = auto.NewGaugeVec(m.gaugeOpts("store_records", "Records held by a stat store, by kind"), []string{"backend", "kind"})

	m.rankingBatches = auto.NewCounter(m.counterOpts("ranking_batches_total", "Venue pages added to distance rankers"))
	m.rankingCandidates = auto.NewHistogram(m.histogramOpts("ranking_candidates", "Venues ranked per nearby query", prometheus.ExponentialBuckets(1, 4, 10)))
	m.rankingDuration = auto.NewHistogram(m.histogramOpts("ranking_duration_milliseconds", "Time to page and rank venues for a nearby query", m.histogramBuckets))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Outcome events waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queued outcome events"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue size over capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Outcome events enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Outcome events dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Outcome events rejected by the queue"))

	m.workerActive = auto.NewGauge(m.gaugeOpts("worker_active", "Running outcome workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Time a worker spends on one outcome event", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Outcome events that failed in a worker"))

	m.streamMessages = auto.NewCounterVec(m.counterOpts("stream_messages_total", "Lifecycle messages read from the stream, by result"), []string{"result"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total", "Errors by component and type"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds", m.histogramBuckets))
}

// Aggregation.

// RecordOutcome counts an applied outcome of kind and its latency.
func RecordOutcome(kind string, latencyMs float64) {
	globalManager.outcomesRecorded.WithLabelValues(kind).Inc()
	globalManager.outcomeLatency.Observe(latencyMs)
}

// RecordOutcomeDuplicate counts a deduplicated outcome event.
func RecordOutcomeDuplicate() {
	globalManager.outcomesDuplicate.Inc()
}

// RecordPartialWrite counts a half-committed pair write.
func RecordPartialWrite(compensated bool) {
	label := "false"
	if compensated {
		label = "true"
	}
	globalManager.partialWrites.WithLabelValues(label).Inc()
}

// RecordPoints adds the absolute value of delta under its sign.
func RecordPoints(delta int) {
	switch {
	case delta > 0:
		globalManager.pointsAwarded.WithLabelValues("reward").Add(float64(delta))
	case delta < 0:
		globalManager.pointsAwarded.WithLabelValues("penalty").Add(float64(-delta))
	}
}

// Store.

// RecordStoreOp records the latency of a store operation and whether it failed.
func RecordStoreOp(backend, op string, latencyMs float64, err error) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
	if err != nil {
		globalManager.storeErrors.WithLabelValues(backend, op).Inc()
	}
}

// UpdateStoreRecords sets the number of records of kind held by backend.
func UpdateStoreRecords(backend, kind string, n int) {
	globalManager.storeRecords.WithLabelValues(backend, kind).Set(float64(n))
}

// Ranking.

// RecordRankingBatch counts a page fed to a ranker.
func RecordRankingBatch() {
	globalManager.rankingBatches.Inc()
}

// RecordRanking records one completed nearby ranking.
func RecordRanking(candidates int, durationMs float64) {
	globalManager.rankingCandidates.Observe(float64(candidates))
	globalManager.rankingDuration.Observe(durationMs)
}

// Queue.

// UpdateQueueSize sets the current queue size and utilization.
func UpdateQueueSize(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an enqueued event.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeued event.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Workers.

// UpdateWorkerActive sets the number of running workers.
func UpdateWorkerActive(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerProcessing records the time spent on one event.
func RecordWorkerProcessing(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed event.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Stream.

// RecordStreamMessage counts a lifecycle message by result (accepted, duplicate, invalid, rejected).
func RecordStreamMessage(result string) {
	globalManager.streamMessages.WithLabelValues(result).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the heap bytes allocated.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
