package metrics

import (
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// Metrics holds all pipeline metrics
type Metrics struct {
	// Frame counters
	FramesAnalyzed atomic.Uint64
	FramesFailed   atomic.Uint64 // frames with at least one failed analyzer
	InputDropped   atomic.Uint64 // frames rejected by a full input queue
	ResultsEvicted atomic.Uint64 // unread results overwritten in the output buffer

	// Latest frame
	ProcessLatencyUs atomic.Uint64
	anomalyScore     atomic.Uint64 // float64 bits
	consensusScore   atomic.Uint64 // float64 bits

	// Buffer usage
	OutputBufferUsage atomic.Uint64 // Percentage (0-100)
	InputQueueUsage   atomic.Uint64 // Percentage (0-100)

	// Worker state
	Running atomic.Uint64 // 0 = stopped, 1 = running

	// Prometheus collectors
	analyzerDuration *prometheus.HistogramVec
	analyzerFailures *prometheus.CounterVec
	alerts           *prometheus.CounterVec
	detections       prometheus.Counter
	registry         *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	// Frame metrics
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "analysis_frames_analyzed_total",
			Help: "Total frames analyzed",
		},
		func() float64 { return float64(m.FramesAnalyzed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "analysis_frames_failed_total",
			Help: "Total frames where at least one analyzer failed",
		},
		func() float64 { return float64(m.FramesFailed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "analysis_input_dropped_total",
			Help: "Total frames dropped because the input queue was full",
		},
		func() float64 { return float64(m.InputDropped.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "analysis_results_evicted_total",
			Help: "Total unread results evicted from the output buffer",
		},
		func() float64 { return float64(m.ResultsEvicted.Load()) },
	))

	// Latest frame metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "analysis_process_latency_ms",
			Help: "Processing time of the latest frame in milliseconds",
		},
		func() float64 { return float64(m.ProcessLatencyUs.Load()) / 1000.0 },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "analysis_anomaly_score",
			Help: "Anomaly score of the latest frame",
		},
		m.AnomalyScore,
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "analysis_consensus_confidence",
			Help: "Consensus confidence of the latest frame",
		},
		m.ConsensusConfidence,
	))

	// Buffer usage metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "analysis_output_buffer_usage_percent",
			Help: "Output buffer usage percentage",
		},
		func() float64 { return float64(m.OutputBufferUsage.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "analysis_input_queue_usage_percent",
			Help: "Input queue usage percentage",
		},
		func() float64 { return float64(m.InputQueueUsage.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "analysis_worker_running",
			Help: "Worker running (0=stopped, 1=running)",
		},
		func() float64 { return float64(m.Running.Load()) },
	))

	// Per-analyzer metrics
	m.analyzerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_analyzer_duration_seconds",
			Help:    "Analyzer processing time per frame",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"analyzer"},
	)
	m.analyzerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_analyzer_failures_total",
			Help: "Per-frame analyzer failures",
		},
		[]string{"analyzer"},
	)
	m.alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_alerts_total",
			Help: "Alerts raised by type",
		},
		[]string{"type"},
	)
	m.detections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_detections_total",
		Help: "Cross-validated detections reported",
	})
	m.registry.MustRegister(m.analyzerDuration, m.analyzerFailures, m.alerts, m.detections)

	// Pre-create label values so every series is exported from the start.
	for _, stage := range types.Stages {
		m.analyzerFailures.WithLabelValues(stage)
	}
	for _, t := range []string{types.AlertHighAnomaly, types.AlertHighMotion, types.AlertCrowdDetected} {
		m.alerts.WithLabelValues(t)
	}
}

// ObserveAnalysis records one completed frame analysis
func (m *Metrics) ObserveAnalysis(a *types.FrameAnalysis) {
	m.FramesAnalyzed.Add(1)
	m.ProcessLatencyUs.Store(uint64(a.ProcessingTime.Microseconds()))
	m.detections.Add(float64(len(a.Detections)))

	for _, alert := range a.Alerts {
		m.alerts.WithLabelValues(alert.Type).Inc()
	}

	r := a.Results
	if r.Extraction != nil {
		m.observeDuration(types.StageExtraction, r.Extraction.ProcessingTime)
	}
	if r.Motion != nil {
		m.observeDuration(types.StageMotion, r.Motion.ProcessingTime)
	}
	if r.Anomaly != nil {
		m.observeDuration(types.StageAnomaly, r.Anomaly.ProcessingTime)
		m.anomalyScore.Store(math.Float64bits(r.Anomaly.Score))
	}
	if r.Consensus != nil {
		m.observeDuration(types.StageConsensus, r.Consensus.ProcessingTime)
		m.consensusScore.Store(math.Float64bits(r.Consensus.Confidence))
	}

	if a.Failed() {
		m.FramesFailed.Add(1)
		for stage := range r.Errors {
			m.analyzerFailures.WithLabelValues(stage).Inc()
		}
	}
}

func (m *Metrics) observeDuration(stage string, d time.Duration) {
	m.analyzerDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// AnomalyScore returns the latest anomaly score
func (m *Metrics) AnomalyScore() float64 {
	return math.Float64frombits(m.anomalyScore.Load())
}

// ConsensusConfidence returns the latest consensus confidence
func (m *Metrics) ConsensusConfidence() float64 {
	return math.Float64frombits(m.consensusScore.Load())
}

// UpdateBufferUsage updates buffer usage percentages
func (m *Metrics) UpdateBufferUsage(outputUsed, outputCap, inputUsed, inputCap int) {
	if outputCap > 0 {
		m.OutputBufferUsage.Store(uint64(outputUsed * 100 / outputCap))
	}
	if inputCap > 0 {
		m.InputQueueUsage.Store(uint64(inputUsed * 100 / inputCap))
	}
}

// SetRunning records the worker state
func (m *Metrics) SetRunning(running bool) {
	if running {
		m.Running.Store(1)
	} else {
		m.Running.Store(0)
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NewServer returns an HTTP server exposing /metrics on addr
func (m *Metrics) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
