package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the MQTT transport
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Topic          string
	EventTopic     string
	Username       string
	Password       string
	QoS            int
	ConnectTimeout time.Duration
}

// MQTTTransport publishes over a paho client. When EventTopic is set the
// transport also listens there for plain-text event id updates.
type MQTTTransport struct {
	cfg     MQTTConfig
	client  mqtt.Client
	eventID *EventID
	logger  *slog.Logger

	mu        sync.Mutex
	connected bool
}

// NewMQTTTransport builds the client options. The broker is dialed by Connect.
func NewMQTTTransport(cfg MQTTConfig, eventID *EventID, logger *slog.Logger) (*MQTTTransport, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt topic is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &MQTTTransport{cfg: cfg, eventID: eventID, logger: logger}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(true)
	opts.SetOnConnectHandler(t.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})

	t.client = mqtt.NewClient(opts)
	return t, nil
}

// onConnect runs after every (re)connect; subscriptions do not survive a
// clean session
func (t *MQTTTransport) onConnect(c mqtt.Client) {
	t.logger.Info("Connected to MQTT broker", slog.String("broker", t.cfg.Broker))
	if t.cfg.EventTopic == "" || t.eventID == nil {
		return
	}

	tok := c.Subscribe(t.cfg.EventTopic, 1, func(_ mqtt.Client, m mqtt.Message) {
		t.eventID.Set(string(m.Payload()))
		t.logger.Info("Event id updated", slog.String("event_id", t.eventID.Get()))
	})
	go func() {
		if tok.WaitTimeout(t.cfg.ConnectTimeout) && tok.Error() != nil {
			t.logger.Error("Failed to subscribe to event topic",
				slog.String("topic", t.cfg.EventTopic), "error", tok.Error())
		}
	}()
}

// Connect dials the broker
func (t *MQTTTransport) Connect(ctx context.Context) error {
	ctx, cancel := withDefaultTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	if err := wait(ctx, t.client.Connect()); err != nil {
		return fmt.Errorf("failed to connect to mqtt broker %s: %w", t.cfg.Broker, err)
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

// Publish sends payload to a topic with the native QoS level. A broker that
// never acknowledges fails the publish after ConnectTimeout unless ctx
// carries its own deadline.
func (t *MQTTTransport) Publish(ctx context.Context, destination string, payload []byte, qos QoS) error {
	ctx, cancel := withDefaultTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		if err := t.Connect(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
	}
	// auto-reconnect in progress
	if !t.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	if err := wait(ctx, t.client.Publish(destination, byte(qos), false, payload)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", destination, err)
	}
	return nil
}

// Close disconnects, giving in-flight work a short grace period
func (t *MQTTTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		t.client.Disconnect(250)
		t.connected = false
	}
	return nil
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
