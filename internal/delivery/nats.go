package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSConfig configures the NATS transport
type NATSConfig struct {
	URLs         []string
	Subject      string
	EventSubject string
	User         string
	Password     string
	QoS          int
	Timeout      time.Duration
}

// NATSTransport publishes on a NATS subject. QoS 0 is a core publish, 1 adds
// a flush round trip to the server and 2 publishes through JetStream and
// waits for the stream's ack.
type NATSTransport struct {
	cfg     NATSConfig
	eventID *EventID
	logger  *slog.Logger

	mu  sync.Mutex
	nc  *nats.Conn
	js  jetstream.JetStream
	sub *nats.Subscription
}

// NewNATSTransport validates the configuration; nothing is dialed until Connect
func NewNATSTransport(cfg NATSConfig, eventID *EventID, logger *slog.Logger) (*NATSTransport, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("at least one nats url is required")
	}
	if cfg.Subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSTransport{cfg: cfg, eventID: eventID, logger: logger}, nil
}

// Connect dials the servers and subscribes to the event subject if configured
func (t *NATSTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nc != nil {
		return nil
	}

	opts := []nats.Option{
		nats.Name("track-announcer"),
		nats.Timeout(t.cfg.Timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			t.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.logger.Info("NATS reconnected", slog.String("address", nc.ConnectedAddr()))
		}),
	}
	if t.cfg.User != "" {
		opts = append(opts, nats.UserInfo(t.cfg.User, t.cfg.Password))
	}

	nc, err := nats.Connect(strings.Join(t.cfg.URLs, ","), opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create jetstream context: %w", err)
	}

	if t.cfg.EventSubject != "" && t.eventID != nil {
		sub, err := nc.Subscribe(t.cfg.EventSubject, func(m *nats.Msg) {
			t.eventID.Set(string(m.Data))
			t.logger.Info("Event id updated", slog.String("event_id", t.eventID.Get()))
		})
		if err != nil {
			nc.Close()
			return fmt.Errorf("failed to subscribe to %s: %w", t.cfg.EventSubject, err)
		}
		t.sub = sub
	}

	t.nc, t.js = nc, js
	t.logger.Info("Connected to NATS",
		slog.String("version", nc.ConnectedServerVersion()),
		slog.String("address", nc.ConnectedAddr()))
	return nil
}

// Publish sends payload on a subject with the requested guarantee
func (t *NATSTransport) Publish(ctx context.Context, destination string, payload []byte, qos QoS) error {
	t.mu.Lock()
	nc := t.nc
	t.mu.Unlock()
	if nc == nil {
		if err := t.Connect(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
	}

	t.mu.Lock()
	nc, js := t.nc, t.js
	t.mu.Unlock()
	if nc == nil || !nc.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := withDefaultTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	switch qos {
	case AtMostOnce:
		if err := nc.Publish(destination, payload); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", destination, err)
		}
	case AtLeastOnce:
		if err := nc.Publish(destination, payload); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", destination, err)
		}
		if err := nc.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("failed to flush %s: %w", destination, err)
		}
	default:
		if _, err := js.Publish(ctx, destination, payload); err != nil {
			return fmt.Errorf("jetstream publish to %s failed: %w", destination, err)
		}
	}
	return nil
}

// Close unsubscribes and closes the connection
func (t *NATSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nc == nil {
		return nil
	}

	var err error
	if t.sub != nil {
		err = t.sub.Unsubscribe()
		t.sub = nil
	}
	t.nc.Close()
	t.nc, t.js = nil, nil
	return err
}
