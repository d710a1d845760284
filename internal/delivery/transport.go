package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// QoS is the delivery guarantee requested from a transport
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

// ParseQoS converts a configured level to a QoS
func ParseQoS(level int) (QoS, error) {
	if level < 0 || level > 2 {
		return 0, fmt.Errorf("qos must be 0, 1 or 2, got %d", level)
	}
	return QoS(level), nil
}

// Transport errors
var (
	ErrNotConnected = errors.New("transport not connected")
	ErrNoReceivers  = errors.New("no receivers for published message")
)

// Transport is the narrow publish capability the outbox needs. Publish on a
// transport that never connected tries Connect first and wraps
// ErrNotConnected when that fails.
type Transport interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, destination string, payload []byte, qos QoS) error
	Close() error
}

// Route is where and how announcements are published
type Route struct {
	Destination string
	QoS         QoS
}

// Transport modes
const (
	ModeHTTP  = "http"
	ModeMQTT  = "mqtt"
	ModeNATS  = "nats"
	ModeRedis = "redis"
)

// Config selects and configures one transport
type Config struct {
	Mode  string
	HTTP  HTTPConfig
	MQTT  MQTTConfig
	NATS  NATSConfig
	Redis RedisConfig
}

// New builds the transport for the configured mode and the route messages
// are published on. Nothing is dialed until Connect.
func New(cfg Config, eventID *EventID, logger *slog.Logger) (Transport, Route, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "delivery", "mode", cfg.Mode)

	switch cfg.Mode {
	case ModeHTTP:
		t, err := NewHTTPTransport(cfg.HTTP, logger)
		if err != nil {
			return nil, Route{}, err
		}
		return t, Route{Destination: cfg.HTTP.Endpoint}, nil
	case ModeMQTT:
		qos, err := ParseQoS(cfg.MQTT.QoS)
		if err != nil {
			return nil, Route{}, fmt.Errorf("mqtt: %w", err)
		}
		t, err := NewMQTTTransport(cfg.MQTT, eventID, logger)
		if err != nil {
			return nil, Route{}, err
		}
		return t, Route{Destination: cfg.MQTT.Topic, QoS: qos}, nil
	case ModeNATS:
		qos, err := ParseQoS(cfg.NATS.QoS)
		if err != nil {
			return nil, Route{}, fmt.Errorf("nats: %w", err)
		}
		t, err := NewNATSTransport(cfg.NATS, eventID, logger)
		if err != nil {
			return nil, Route{}, err
		}
		return t, Route{Destination: cfg.NATS.Subject, QoS: qos}, nil
	case ModeRedis:
		qos, err := ParseQoS(cfg.Redis.QoS)
		if err != nil {
			return nil, Route{}, fmt.Errorf("redis: %w", err)
		}
		t, err := NewRedisTransport(cfg.Redis, eventID, logger)
		if err != nil {
			return nil, Route{}, err
		}
		return t, Route{Destination: cfg.Redis.Channel, QoS: qos}, nil
	default:
		return nil, Route{}, fmt.Errorf("unknown delivery mode %q", cfg.Mode)
	}
}

// withDefaultTimeout bounds ctx when the caller did not
func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
