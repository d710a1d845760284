package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	// None of these may panic
	m.RecordChunkCaptured(true)
	m.SetQueueDepth(3)
	m.RecordFrameSent(100)
	m.RecordIntegrityError()
	m.RecordException("BadRequestException")
	m.RecordTranscript()
	m.SetStreamConnected(true)
	m.RecordMessageEmitted("Super Pro", "CLASS_TO_LANES")
	m.RecordSuppressed("debounced", 1)
	m.RecordDelivery("sent")
	m.SetOutboxPending(2)
	m.RecordFlush(0.01, 1)
	m.RecordHTTPRequest("GET", "/health", "200", 0.001)
	m.RecordHTTPError("GET", "/health", "client_error")
}

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.RecordChunkCaptured(false)
	m.RecordChunkCaptured(true)
	m.RecordFrameSent(120)
	m.RecordFrameSent(80)
	m.RecordMessageEmitted("Super Pro", "CLASS_TO_LANES")
	m.RecordSuppressed("debounced", 2)
	m.RecordSuppressed("debounced", 0)
	m.RecordDelivery("queued")
	m.SetOutboxPending(4)
	m.SetStreamConnected(true)

	tests := []struct {
		name     string
		got      float64
		expected float64
	}{
		{"chunks captured", testutil.ToFloat64(m.ChunksCaptured), 2},
		{"chunks dropped", testutil.ToFloat64(m.ChunksDropped), 1},
		{"frames sent", testutil.ToFloat64(m.FramesSent), 2},
		{"bytes sent", testutil.ToFloat64(m.BytesSent), 200},
		{"emitted", testutil.ToFloat64(m.MessagesEmitted.WithLabelValues("Super Pro", "CLASS_TO_LANES")), 1},
		{"suppressed", testutil.ToFloat64(m.MessagesSuppressed.WithLabelValues("debounced")), 2},
		{"queued", testutil.ToFloat64(m.Deliveries.WithLabelValues("queued")), 1},
		{"pending", testutil.ToFloat64(m.OutboxPending), 4},
		{"connected", testutil.ToFloat64(m.StreamConnected), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, tt.got)
			}
		})
	}
}
