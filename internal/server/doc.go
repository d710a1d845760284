// Package server implements the monitoring HTTP API: health, pipeline and
// outbox statistics, recent outbox records, the sanitized configuration and
// Prometheus metrics.
package server
