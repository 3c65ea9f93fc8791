package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job metrics
	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meditation_gateway_active_jobs",
		Help: "Number of meditations currently being generated",
	})

	totalJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meditation_gateway_jobs_total",
		Help: "Total number of meditation jobs by outcome",
	}, []string{"status"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meditation_gateway_job_duration_seconds",
		Help:    "End to end duration of a meditation job in seconds",
		Buckets: []float64{5, 10, 30, 60, 120, 300, 600},
	})

	// Script generation metrics
	llmRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meditation_gateway_llm_requests_total",
		Help: "Total number of script generation requests",
	}, []string{"provider", "status"})

	llmLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meditation_gateway_llm_latency_seconds",
		Help:    "Script generation latency in seconds",
		Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"provider"})

	// TTS metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meditation_gateway_tts_requests_total",
		Help: "Total number of speech synthesis requests",
	}, []string{"status"})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meditation_gateway_tts_latency_seconds",
		Help:    "Speech synthesis latency in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40},
	})

	// Markup metrics
	pausePrimitives = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meditation_gateway_pause_primitives_total",
		Help: "Total ten-second breaks emitted into SSML",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meditation_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meditation_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meditation_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meditation_gateway_audio_bytes_total",
		Help: "Total audio bytes synthesized",
	}, []string{"format"})
)

// JobMetrics tracks metrics for a single meditation job
type JobMetrics struct {
	jobID        string
	startTime    time.Time
	llmStartTime time.Time
	ttsStartTime time.Time
	mu           sync.Mutex
}

// NewJobMetrics creates a new metrics tracker for a job
func NewJobMetrics(jobID string) *JobMetrics {
	return &JobMetrics{
		jobID:     jobID,
		startTime: time.Now(),
	}
}

// RecordJobStart records the start of a job
func (m *JobMetrics) RecordJobStart() {
	activeJobs.Inc()
}

// RecordJobEnd records the end of a job
func (m *JobMetrics) RecordJobEnd(success bool) {
	activeJobs.Dec()
	jobDuration.Observe(time.Since(m.startTime).Seconds())
	totalJobs.WithLabelValues(statusLabel(success)).Inc()
}

// RecordLLMStart records the start of script generation
func (m *JobMetrics) RecordLLMStart() {
	m.mu.Lock()
	m.llmStartTime = time.Now()
	m.mu.Unlock()
}

// RecordLLMEnd records the end of script generation
func (m *JobMetrics) RecordLLMEnd(provider string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.llmStartTime.IsZero() {
		llmLatency.WithLabelValues(provider).Observe(time.Since(m.llmStartTime).Seconds())
	}
	llmRequests.WithLabelValues(provider, statusLabel(success)).Inc()
}

// RecordTTSStart records the start of speech synthesis
func (m *JobMetrics) RecordTTSStart() {
	m.mu.Lock()
	m.ttsStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTTSEnd records the end of speech synthesis
func (m *JobMetrics) RecordTTSEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ttsStartTime.IsZero() {
		ttsLatency.Observe(time.Since(m.ttsStartTime).Seconds())
	}
	ttsRequests.WithLabelValues(statusLabel(success)).Inc()
}

// RecordPausePrimitives records the breaks emitted for one script
func (m *JobMetrics) RecordPausePrimitives(n int) {
	pausePrimitives.Add(float64(n))
}

// RecordError records an error
func (m *JobMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records synthesized audio size
func (m *JobMetrics) RecordAudioBytes(format string, bytes int) {
	audioBytesProduced.WithLabelValues(format).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
