package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultHTTPTimeout bounds a single POST
const DefaultHTTPTimeout = 3 * time.Second

// HTTPConfig configures the webhook transport
type HTTPConfig struct {
	Endpoint string
	Timeout  time.Duration
	Headers  map[string]string
}

// HTTPTransport POSTs each payload as JSON. Any non-2xx answer is a failure.
type HTTPTransport struct {
	client  *http.Client
	timeout time.Duration
	headers map[string]string
	logger  *slog.Logger
}

// NewHTTPTransport validates the endpoint and creates the transport
func NewHTTPTransport(cfg HTTPConfig, logger *slog.Logger) (*HTTPTransport, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("http endpoint must be an absolute http(s) URL, got %q", cfg.Endpoint)
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	return &HTTPTransport{
		client:  &http.Client{},
		timeout: timeout,
		headers: cfg.Headers,
		logger:  logger,
	}, nil
}

// Connect is a no-op; every publish is its own request
func (t *HTTPTransport) Connect(ctx context.Context) error {
	return nil
}

// Publish POSTs payload to destination. QoS is not meaningful over HTTP.
func (t *HTTPTransport) Publish(ctx context.Context, destination string, payload []byte, _ QoS) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to %s: %w", destination, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post to %s: unexpected status %d", destination, resp.StatusCode)
	}

	t.logger.Debug("Posted announcement", slog.Int("status", resp.StatusCode), slog.Int("bytes", len(payload)))
	return nil
}

// Close releases idle connections
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// IsTimeout reports whether a publish failed because its deadline passed
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
