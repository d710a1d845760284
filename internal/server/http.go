package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Navaneeth272001/ASR-Track-Tech/internal/config"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/metrics"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/outbox"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/pipeline"
)

const (
	serviceName    = "track-announcer"
	serviceVersion = "1.0.0"

	defaultOutboxLimit = 50
	maxOutboxLimit     = 500
)

// PipelineView exposes the running pipeline's state
type PipelineView interface {
	State() string
	Stats() pipeline.Stats
}

// OutboxView exposes the durable outbox
type OutboxView interface {
	Stats(ctx context.Context) (outbox.Stats, error)
	Recent(ctx context.Context, limit int) ([]outbox.Record, error)
}

// HTTPServer provides HTTP API endpoints for monitoring
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	pipeline PipelineView
	outbox   OutboxView
	metrics  *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, p PipelineView, ob OutboxView, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger.With("component", "http"),
		config:    appConfig,
		pipeline:  p,
		outbox:    ob,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the route table
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/outbox", h.withMetrics("/outbox", h.handleOutbox))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", "error", err)
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// handleHealth reports healthy while the pipeline is starting or running
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	state := h.pipeline.State()
	status, code := "healthy", http.StatusOK
	switch state {
	case pipeline.StateRunning:
	case pipeline.StateIdle, pipeline.StateStarting:
		status = "starting"
	default:
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	outboxStatus := map[string]interface{}{"status": "ok"}
	if st, err := h.outbox.Stats(r.Context()); err != nil {
		outboxStatus = map[string]interface{}{"status": "error", "error": err.Error()}
	} else {
		outboxStatus["pending"] = st.Pending
	}

	h.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"pipeline": map[string]interface{}{"state": state},
			"outbox":   outboxStatus,
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"pipeline":  h.pipeline.Stats(),
	}
	if st, err := h.outbox.Stats(r.Context()); err != nil {
		h.logger.Warn("Failed to read outbox stats", "error", err)
	} else {
		stats["outbox"] = st
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// handleOutbox lists the newest outbox records, ?limit=N
func (h *HTTPServer) handleOutbox(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	limit := defaultOutboxLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxOutboxLimit {
			http.Error(w, fmt.Sprintf("limit must be between 1 and %d", maxOutboxLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	st, err := h.outbox.Stats(r.Context())
	if err != nil {
		h.logger.Error("Failed to read outbox stats", "error", err)
		http.Error(w, "outbox unavailable", http.StatusInternalServerError)
		return
	}
	records, err := h.outbox.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list outbox records", "error", err)
		http.Error(w, "outbox unavailable", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending":   st.Pending,
		"sent":      st.Sent,
		"timestamp": time.Now().UTC(),
		"records":   records,
	})
}

// handleConfig returns the configuration with credentials removed
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	c := h.config
	headers := make([]string, 0, len(c.Delivery.HTTP.Headers))
	for k := range c.Delivery.HTTP.Headers {
		headers = append(headers, k)
	}

	// Passwords and header values are intentionally omitted
	sanitized := map[string]interface{}{
		"recognition": c.Recognition,
		"audio":       c.Audio,
		"classifier": map[string]interface{}{
			"categories":       c.Classifier.Categories,
			"intents":          c.Classifier.Intents,
			"templates":        c.Classifier.Templates,
			"fuzzy_threshold":  c.Classifier.FuzzyThreshold,
			"debounce_seconds": c.Classifier.DebounceSeconds,
		},
		"delivery": map[string]interface{}{
			"mode":         c.Delivery.Mode,
			"queue_db":     c.Delivery.QueueDB,
			"flush_policy": c.Delivery.FlushPolicy,
			"http": map[string]interface{}{
				"endpoint": c.Delivery.HTTP.Endpoint,
				"timeout":  c.Delivery.HTTP.Timeout,
				"headers":  headers,
			},
			"mqtt": map[string]interface{}{
				"broker":      c.Delivery.MQTT.Broker,
				"client_id":   c.Delivery.MQTT.ClientID,
				"topic":       c.Delivery.MQTT.Topic,
				"event_topic": c.Delivery.MQTT.EventTopic,
				"username":    c.Delivery.MQTT.Username,
				"qos":         c.Delivery.MQTT.QoS,
			},
			"nats": map[string]interface{}{
				"urls":          c.Delivery.NATS.URLs,
				"subject":       c.Delivery.NATS.Subject,
				"event_subject": c.Delivery.NATS.EventSubject,
				"user":          c.Delivery.NATS.User,
				"qos":           c.Delivery.NATS.QoS,
			},
			"redis": map[string]interface{}{
				"addr":          c.Delivery.Redis.Addr,
				"username":      c.Delivery.Redis.Username,
				"db":            c.Delivery.Redis.DB,
				"channel":       c.Delivery.Redis.Channel,
				"event_channel": c.Delivery.Redis.EventChannel,
				"qos":           c.Delivery.Redis.QoS,
			},
		},
		"logging": c.Logging,
	}

	h.writeJSON(w, http.StatusOK, sanitized)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":              "API documentation",
			"GET /health":        "Service health check",
			"GET /stats":         "Pipeline and outbox statistics",
			"GET /outbox?limit=": "Newest outbox records",
			"GET /config":        "Service configuration without credentials",
			"GET /metrics":       "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
