package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis pub/sub transport
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	Channel      string
	EventChannel string
	QoS          int
	Timeout      time.Duration
}

// RedisTransport publishes with PUBLISH. Redis has no delivery guarantee of
// its own; at QoS 1 and above a publish nobody received counts as a failure
// so the outbox keeps the message.
type RedisTransport struct {
	cfg     RedisConfig
	rdb     *redis.Client
	eventID *EventID
	logger  *slog.Logger

	mu        sync.Mutex
	connected bool
	sub       *redis.PubSub
	done      chan struct{}
}

// NewRedisTransport creates the client; the server is pinged by Connect
func NewRedisTransport(cfg RedisConfig, eventID *EventID, logger *slog.Logger) (*RedisTransport, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("redis channel is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	return &RedisTransport{cfg: cfg, rdb: rdb, eventID: eventID, logger: logger}, nil
}

// Connect pings the server and starts the event channel listener
func (t *RedisTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}

	if err := t.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis %s: %w", t.cfg.Addr, err)
	}

	if t.cfg.EventChannel != "" && t.eventID != nil {
		sub := t.rdb.Subscribe(ctx, t.cfg.EventChannel)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return fmt.Errorf("failed to subscribe to %s: %w", t.cfg.EventChannel, err)
		}
		t.sub = sub
		t.done = make(chan struct{})
		go t.listen(sub.Channel(), t.done)
	}

	t.connected = true
	t.logger.Info("Connected to Redis", slog.String("addr", t.cfg.Addr))
	return nil
}

func (t *RedisTransport) listen(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		t.eventID.Set(msg.Payload)
		t.logger.Info("Event id updated", slog.String("event_id", t.eventID.Get()))
	}
}

// Publish sends payload to a channel
func (t *RedisTransport) Publish(ctx context.Context, destination string, payload []byte, qos QoS) error {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		if err := t.Connect(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
	}

	receivers, err := t.rdb.Publish(ctx, destination, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", destination, err)
	}
	if receivers == 0 && qos >= AtLeastOnce {
		return fmt.Errorf("publish to %s: %w", destination, ErrNoReceivers)
	}
	return nil
}

// Close stops the listener and closes the client
func (t *RedisTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var subErr error
	if t.sub != nil {
		subErr = t.sub.Close()
		<-t.done
		t.sub = nil
	}
	t.connected = false

	if err := t.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return subErr
}
