package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the announcer. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Audio capture metrics
	ChunksCaptured prometheus.Counter
	ChunksDropped  prometheus.Counter
	QueueDepth     prometheus.Gauge

	// Recognition stream metrics
	FramesSent          prometheus.Counter
	BytesSent           prometheus.Counter
	IntegrityErrors     prometheus.Counter
	ExceptionFrames     *prometheus.CounterVec
	TranscriptsReceived prometheus.Counter
	StreamConnected     prometheus.Gauge

	// Classification metrics
	MessagesEmitted    *prometheus.CounterVec
	MessagesSuppressed *prometheus.CounterVec

	// Delivery metrics
	Deliveries    *prometheus.CounterVec
	OutboxPending prometheus.Gauge
	FlushDuration prometheus.Histogram
	FlushSent     prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default registerer
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all Prometheus metrics and registers them with reg
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Audio capture metrics
		ChunksCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "announcer_audio_chunks_captured_total",
			Help: "Total number of PCM chunks produced by the capture device",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "announcer_audio_chunks_dropped_total",
			Help: "Total number of PCM chunks dropped because the send queue was full",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "announcer_audio_queue_depth",
			Help: "Current number of chunks waiting to be sent",
		}),

		// Recognition stream metrics
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "announcer_stream_frames_sent_total",
			Help: "Total number of audio event frames written to the recognition stream",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "announcer_stream_bytes_sent_total",
			Help: "Total number of framed bytes written to the recognition stream",
		}),
		IntegrityErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "announcer_stream_integrity_errors_total",
			Help: "Total number of inbound frames rejected by length or checksum validation",
		}),
		ExceptionFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "announcer_stream_exceptions_total",
			Help: "Total number of exception frames received from the recognition backend",
		}, []string{"type"}),
		TranscriptsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "announcer_transcripts_received_total",
			Help: "Total number of final transcripts received",
		}),
		StreamConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "announcer_stream_connected",
			Help: "1 while the recognition stream is open",
		}),

		// Classification metrics
		MessagesEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "announcer_messages_emitted_total",
			Help: "Total number of announcements produced by the classifier",
		}, []string{"category", "intent"}),
		MessagesSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "announcer_messages_suppressed_total",
			Help: "Total number of classifications that produced no announcement",
		}, []string{"reason"}),

		// Delivery metrics
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "announcer_deliveries_total",
			Help: "Total number of delivery attempts by result",
		}, []string{"result"}),
		OutboxPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "announcer_outbox_pending",
			Help: "Current number of unsent outbox records",
		}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "announcer_outbox_flush_duration_seconds",
			Help:    "Duration of outbox flush passes",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		FlushSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "announcer_outbox_flushed_total",
			Help: "Total number of queued records delivered by flush passes",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "announcer_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "announcer_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "announcer_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordChunkCaptured counts a captured chunk and whether it was dropped
func (m *Metrics) RecordChunkCaptured(dropped bool) {
	if m == nil {
		return
	}
	m.ChunksCaptured.Inc()
	if dropped {
		m.ChunksDropped.Inc()
	}
}

// SetQueueDepth sets the current send queue depth
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// RecordFrameSent records one framed audio event written to the socket
func (m *Metrics) RecordFrameSent(sizeBytes int) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(sizeBytes))
}

// RecordIntegrityError increments the integrity errors counter
func (m *Metrics) RecordIntegrityError() {
	if m == nil {
		return
	}
	m.IntegrityErrors.Inc()
}

// RecordException records a backend exception frame
func (m *Metrics) RecordException(exceptionType string) {
	if m == nil {
		return
	}
	m.ExceptionFrames.WithLabelValues(exceptionType).Inc()
}

// RecordTranscript increments the transcripts received counter
func (m *Metrics) RecordTranscript() {
	if m == nil {
		return
	}
	m.TranscriptsReceived.Inc()
}

// SetStreamConnected sets the stream connected gauge
func (m *Metrics) SetStreamConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.StreamConnected.Set(1)
	} else {
		m.StreamConnected.Set(0)
	}
}

// RecordMessageEmitted records an announcement produced by the classifier
func (m *Metrics) RecordMessageEmitted(category, intent string) {
	if m == nil {
		return
	}
	m.MessagesEmitted.WithLabelValues(category, intent).Inc()
}

// RecordSuppressed records a classification that produced no announcement.
// reason is one of no_category, no_intent, debounced.
func (m *Metrics) RecordSuppressed(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MessagesSuppressed.WithLabelValues(reason).Add(float64(n))
}

// RecordDelivery records a delivery attempt: sent, queued or store_error
func (m *Metrics) RecordDelivery(result string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(result).Inc()
}

// SetOutboxPending sets the number of unsent outbox records
func (m *Metrics) SetOutboxPending(pending int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(pending))
}

// RecordFlush records a flush pass
func (m *Metrics) RecordFlush(durationSeconds float64, sent int) {
	if m == nil {
		return
	}
	m.FlushDuration.Observe(durationSeconds)
	m.FlushSent.Add(float64(sent))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
