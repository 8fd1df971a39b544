// Package metrics provides Prometheus metrics for the pitwall setup service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Engine metrics
	optimizations        *prometheus.CounterVec
	optimizationLatency  prometheus.Histogram
	turnsPerOptimization prometheus.Histogram
	ruleFirings          *prometheus.CounterVec
	clampEvents          *prometheus.CounterVec

	// Store metrics
	storeOps     *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
	sessions     prometheus.Gauge

	// Job queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueRejected           *prometheus.CounterVec
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter
	jobDuplicates           prometheus.Counter

	// Recovery reports
	recoveryReports *prometheus.CounterVec

	// Inbox
	inboxFiles *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec
	rateLimited         *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by package-level recorders

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pitwall",
		subsystem:        "setup",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
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

	m.optimizations = auto.NewCounterVec(m.counterOpts("optimizations_total",
		"Setup optimizations by outcome (ok, schema_error, malformed_turn, error)"), []string{"outcome"})
	m.optimizationLatency = auto.NewHistogram(m.histogramOpts("optimization_latency_milliseconds",
		"Wall time of one optimization in milliseconds", m.histogramBuckets))
	m.turnsPerOptimization = auto.NewHistogram(m.histogramOpts("turns_per_optimization",
		"Number of turns in each optimized session", []float64{1, 2, 4, 8, 12, 16, 20, 30}))
	m.ruleFirings = auto.NewCounterVec(m.counterOpts("rule_firings_total",
		"Heuristic rule firings by rule name"), []string{"rule"})
	m.clampEvents = auto.NewCounterVec(m.counterOpts("clamp_events_total",
		"Applied parameters clamped to an absolute limit, by parameter"), []string{"param"})

	m.storeOps = auto.NewCounterVec(m.counterOpts("store_operations_total",
		"Document store operations by op and result"), []string{"op", "result"})
	m.storeLatency = auto.NewHistogramVec(m.histogramOpts("store_latency_milliseconds",
		"Document store operation latency in milliseconds", m.histogramBuckets), []string{"op"})
	m.sessions = auto.NewGauge(m.gaugeOpts("sessions",
		"Session documents held by the store"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("job_queue_size", "Current number of queued optimization jobs"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("job_queue_capacity", "Capacity of the optimization job queue"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("job_queue_enqueued_total", "Jobs accepted by the queue"))
	m.queueRejected = auto.NewCounterVec(m.counterOpts("job_queue_rejected_total",
		"Jobs rejected by the queue, by reason"), []string{"reason"})
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Number of optimization workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Time spent by a worker on one job in milliseconds", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Jobs that ended in failure"))
	m.jobDuplicates = auto.NewCounter(m.counterOpts("job_duplicates_total",
		"Job submissions answered from the idempotency cache"))

	m.recoveryReports = auto.NewCounterVec(m.counterOpts("recovery_findings_total",
		"Recovery report findings by focus area and severity"), []string{"focus_area", "severity"})

	m.inboxFiles = auto.NewCounterVec(m.counterOpts("inbox_files_total",
		"Session files picked up from the inbox directory, by result"), []string{"result"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status code"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"HTTP errors by endpoint, method and error type"), []string{"endpoint", "method", "error_type"})
	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Errors by component and error type"), []string{"component", "error_type"})
	m.rateLimited = auto.NewCounterVec(m.counterOpts("rate_limited_total",
		"Requests rejected by the rate limiter, by endpoint"), []string{"endpoint"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"Average GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RecordOptimization counts one optimization outcome and its latency.
func RecordOptimization(outcome string, latencyMs float64, turns int) {
	globalManager.optimizations.WithLabelValues(outcome).Inc()
	globalManager.optimizationLatency.Observe(latencyMs)
	if turns > 0 {
		globalManager.turnsPerOptimization.Observe(float64(turns))
	}
}

// RecordRuleFiring counts one firing of a named heuristic rule.
func RecordRuleFiring(rule string) {
	globalManager.ruleFirings.WithLabelValues(rule).Inc()
}

// RecordClamp counts one parameter clamped to its absolute limit.
func RecordClamp(param string) {
	globalManager.clampEvents.WithLabelValues(param).Inc()
}

// RecordStoreOperation records a store call with its result ("ok", "not_found", "error").
func RecordStoreOperation(op, result string, latencyMs float64) {
	globalManager.storeOps.WithLabelValues(op, result).Inc()
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateSessionCount sets the number of stored sessions.
func UpdateSessionCount(count int) {
	globalManager.sessions.Set(float64(count))
}

// UpdateQueueSize sets the current job queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the job queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueReject counts a rejected job.
func RecordQueueReject(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency observes one job's processing time.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed job.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordJobDuplicate counts a job submission served from the idempotency cache.
func RecordJobDuplicate() {
	globalManager.jobDuplicates.Inc()
}

// RecordRecoveryFinding counts one recovery report finding.
func RecordRecoveryFinding(focusArea, severity string) {
	globalManager.recoveryReports.WithLabelValues(focusArea, severity).Inc()
}

// RecordInboxFile counts one inbox file by result ("stored", "invalid", "error").
func RecordInboxFile(result string) {
	globalManager.inboxFiles.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint counts an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent counts an error raised inside a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordRateLimited counts a request rejected by the rate limiter.
func RecordRateLimited(endpoint string) {
	globalManager.rateLimited.WithLabelValues(endpoint).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
