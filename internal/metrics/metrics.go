package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vzahanych/land2port/internal/reframe"
)

// Metrics holds Prometheus counters and gauges for the reframing service.
type Metrics struct {
	registry         *prometheus.Registry
	framesTotal      prometheus.Counter
	continuityTotal  *prometheus.CounterVec
	layoutTotal      *prometheus.CounterVec
	droppedTotal     prometheus.Counter
	predictedTotal   prometheus.Counter
	detectorErrors   prometheus.Counter
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	activeSessions   prometheus.Gauge
	queueDepth       prometheus.Gauge
	frameDuration    prometheus.Histogram
	streamsCompleted prometheus.Counter
}

// New creates and registers Prometheus metrics for the service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "land2port_frames_processed_total",
			Help: "Total number of frames that received a crop decision",
		}),
		continuityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "land2port_continuity_total",
			Help: "Frames by cut detector verdict (continuity, soft, hard)",
		}, []string{"class"}),
		layoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "land2port_emitted_layout_total",
			Help: "Emitted windows by layout tag",
		}, []string{"layout"}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "land2port_detections_dropped_total",
			Help: "Malformed detections dropped at ingestion",
		}),
		predictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "land2port_predicted_frames_total",
			Help: "Frames where the motion track coasted on a prediction",
		}),
		detectorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "land2port_detector_errors_total",
			Help: "Detector calls that failed and were treated as empty",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "land2port_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "land2port_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "land2port_active_sessions",
			Help: "Number of open reframing sessions",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "land2port_pipeline_queue_depth",
			Help: "Frames currently waiting between decode and reframe",
		}),
		frameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "land2port_frame_decision_seconds",
			Help:    "Time spent deciding the crop for one frame",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		streamsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "land2port_streams_completed_total",
			Help: "Streams that were flushed",
		}),
	}

	registry.MustRegister(
		m.framesTotal,
		m.continuityTotal,
		m.layoutTotal,
		m.droppedTotal,
		m.predictedTotal,
		m.detectorErrors,
		m.requestsTotal,
		m.errorsTotal,
		m.activeSessions,
		m.queueDepth,
		m.frameDuration,
		m.streamsCompleted,
	)

	return m
}

// Registry returns the registry the metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// FrameProcessed records one crop decision. It satisfies reframe.Observer.
func (m *Metrics) FrameProcessed(_ string, out reframe.FrameOutput, elapsed time.Duration) {
	m.framesTotal.Inc()
	m.continuityTotal.WithLabelValues(out.Cut.Class.String()).Inc()
	m.layoutTotal.WithLabelValues(out.Window.Tag()).Inc()
	if out.Dropped > 0 {
		m.droppedTotal.Add(float64(out.Dropped))
	}
	if out.Predicted {
		m.predictedTotal.Inc()
	}
	m.frameDuration.Observe(elapsed.Seconds())
}

// IncDetectorErrors increments the detector error counter.
func (m *Metrics) IncDetectorErrors() {
	m.detectorErrors.Inc()
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncStreamsCompleted increments the completed streams counter.
func (m *Metrics) IncStreamsCompleted() {
	m.streamsCompleted.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// SetQueueDepth sets the pipeline queue gauge.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
