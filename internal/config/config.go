package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Navaneeth272001/ASR-Track-Tech/internal/audio"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/classifier"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/delivery"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/outbox"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/protocol"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/transcribe"
)

// Config represents the complete service configuration
type Config struct {
	Recognition RecognitionConfig `yaml:"recognition"`
	Audio       AudioConfig       `yaml:"audio"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RecognitionConfig contains streaming speech recognition configuration
type RecognitionConfig struct {
	Region         string `yaml:"region"`
	LanguageCode   string `yaml:"language_code"`
	SampleRate     int    `yaml:"sample_rate"`
	VocabularyName string `yaml:"vocabulary_name"`
	QueueSize      int    `yaml:"queue_size"`
	DialTimeout    int    `yaml:"dial_timeout"`  // seconds
	DrainTimeout   int    `yaml:"drain_timeout"` // seconds
	Endpoint       string `yaml:"endpoint"`
}

// AudioConfig contains microphone capture parameters
type AudioConfig struct {
	DeviceIndex       int `yaml:"device_index"`
	CaptureSampleRate int `yaml:"capture_sample_rate"`
	StreamSampleRate  int `yaml:"stream_sample_rate"`
	Channels          int `yaml:"channels"`
	FrameMS           int `yaml:"frame_ms"`
}

// ClassifierConfig contains the category and intent tables
type ClassifierConfig struct {
	Categories      []classifier.Category `yaml:"categories"`
	Intents         []classifier.Intent   `yaml:"intents"`
	Templates       map[string]string     `yaml:"templates"`
	FuzzyThreshold  float64               `yaml:"fuzzy_threshold"`
	DebounceSeconds int                   `yaml:"debounce_seconds"`
}

// DeliveryConfig selects the transport and the outbox location
type DeliveryConfig struct {
	Mode        string        `yaml:"mode"`
	QueueDB     string        `yaml:"queue_db"`
	FlushPolicy string        `yaml:"flush_policy"`
	HTTP        WebhookConfig `yaml:"http"`
	MQTT        MQTTConfig    `yaml:"mqtt"`
	NATS        NATSConfig    `yaml:"nats"`
	Redis       RedisConfig   `yaml:"redis"`
}

// WebhookConfig contains HTTP delivery configuration
type WebhookConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Timeout  int               `yaml:"timeout"` // seconds
	Headers  map[string]string `yaml:"headers"`
}

// MQTTConfig contains MQTT delivery configuration
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Topic      string `yaml:"topic"`
	EventTopic string `yaml:"event_topic"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	QoS        int    `yaml:"qos"`
}

// NATSConfig contains NATS delivery configuration
type NATSConfig struct {
	URLs         []string `yaml:"urls"`
	Subject      string   `yaml:"subject"`
	EventSubject string   `yaml:"event_subject"`
	User         string   `yaml:"user"`
	Password     string   `yaml:"password"`
	QoS          int      `yaml:"qos"`
}

// RedisConfig contains Redis delivery configuration
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	Channel      string `yaml:"channel"`
	EventChannel string `yaml:"event_channel"`
	QoS          int    `yaml:"qos"`
}

// HTTPConfig contains monitoring API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration. Load starts from it, so a file
// only needs the settings it changes.
func Default() *Config {
	return &Config{
		Recognition: RecognitionConfig{
			Region:         "us-east-1",
			LanguageCode:   "en-US",
			SampleRate:     16000,
			VocabularyName: "racetrack-classes",
			QueueSize:      64,
			DialTimeout:    10,
			DrainTimeout:   5,
		},
		Audio: AudioConfig{
			DeviceIndex:       -1,
			CaptureSampleRate: 44100,
			StreamSampleRate:  16000,
			Channels:          1,
			FrameMS:           20,
		},
		Classifier: ClassifierConfig{
			Categories: []classifier.Category{
				{Name: "Stock Eliminator", ID: 0, Aliases: []string{"stock eliminator", "stk elim", "stk elim.", "stock elim"}},
				{Name: "Super Pro", ID: 1, Aliases: []string{"super pro", "s pro", "su pro", "supro"}},
				{Name: "Junior Dragster", ID: 2, Aliases: []string{"junior dragster", "jr dragster", "junior drag", "jr drag"}},
				{Name: "Pro ET", ID: 3, Aliases: []string{"pro et", "pro e t", "proet"}},
				{Name: "Sportsman", ID: 4, Aliases: []string{"sportsman", "sports man", "sportzman"}},
				{Name: "Top Dragster", ID: 5, Aliases: []string{"top dragster", "td", "top drg"}},
				{Name: "Super Comp", ID: 6, Aliases: []string{"super comp", "super competition", "s comp"}},
				{Name: "Street", ID: 7, Aliases: []string{"street", "street class"}},
				{Name: "Top Sportsman", ID: 8, Aliases: []string{"top sportsman", "ts", "top sportzman"}},
			},
			Intents: []classifier.Intent{
				{Name: "CLASS_TO_LANES", Phrases: []string{
					"to the lanes", "make your way to", "head to", "to the staging lanes", "please to the lanes",
				}},
				{Name: "CLASS_STANDBY", Phrases: []string{
					"standby", "be on standby", "on deck", "be ready", "please be on standby",
				}},
			},
			FuzzyThreshold:  classifier.DefaultFuzzyThreshold,
			DebounceSeconds: 180,
		},
		Delivery: DeliveryConfig{
			Mode:        delivery.ModeMQTT,
			QueueDB:     "outbox.db",
			FlushPolicy: string(outbox.PolicyStop),
			HTTP:        WebhookConfig{Timeout: 3},
			MQTT: MQTTConfig{
				Broker:   "tcp://node.kaatru.org:1883",
				ClientID: "track-announcer",
				Topic:    "racetrack/announcements",
				QoS:      1,
			},
			NATS: NATSConfig{
				URLs:    []string{"nats://localhost:4222"},
				Subject: "racetrack.announcements",
				QoS:     1,
			},
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Channel: "racetrack:announcements",
				QoS:     1,
			},
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Recognition.Validate(); err != nil {
		return fmt.Errorf("recognition config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if c.Audio.StreamSampleRate != c.Recognition.SampleRate {
		return fmt.Errorf("audio stream_sample_rate (%d) must match recognition sample_rate (%d)",
			c.Audio.StreamSampleRate, c.Recognition.SampleRate)
	}

	if err := c.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier config: %w", err)
	}

	if err := c.Delivery.Validate(); err != nil {
		return fmt.Errorf("delivery config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates recognition configuration
func (r *RecognitionConfig) Validate() error {
	if r.Region == "" {
		return fmt.Errorf("region cannot be empty")
	}

	if r.LanguageCode == "" {
		return fmt.Errorf("language_code cannot be empty")
	}

	validRates := map[int]bool{8000: true, 16000: true, 32000: true, 44100: true, 48000: true}
	if !validRates[r.SampleRate] {
		return fmt.Errorf("sample_rate must be one of 8000, 16000, 32000, 44100, 48000, got %d", r.SampleRate)
	}

	if r.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", r.QueueSize)
	}

	if r.DialTimeout < 1 {
		return fmt.Errorf("dial_timeout must be at least 1 second, got %d", r.DialTimeout)
	}

	if r.DrainTimeout < 1 {
		return fmt.Errorf("drain_timeout must be at least 1 second, got %d", r.DrainTimeout)
	}

	if r.Endpoint != "" {
		u, err := url.Parse(r.Endpoint)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("endpoint must be a ws:// or wss:// URL, got '%s'", r.Endpoint)
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.DeviceIndex < -1 {
		return fmt.Errorf("device_index must be -1 (default device) or a device index, got %d", a.DeviceIndex)
	}

	if a.CaptureSampleRate < 8000 || a.CaptureSampleRate > 192000 {
		return fmt.Errorf("capture_sample_rate must be between 8000 and 192000 Hz, got %d", a.CaptureSampleRate)
	}

	if a.StreamSampleRate < 8000 || a.StreamSampleRate > 48000 {
		return fmt.Errorf("stream_sample_rate must be between 8000 and 48000 Hz, got %d", a.StreamSampleRate)
	}

	if a.Channels < 1 || a.Channels > 8 {
		return fmt.Errorf("channels must be between 1 and 8, got %d", a.Channels)
	}

	if a.FrameMS < 10 || a.FrameMS > 500 {
		return fmt.Errorf("frame_ms must be between 10 and 500, got %d", a.FrameMS)
	}

	return nil
}

// Validate builds the alias table and templates so configuration mistakes,
// ambiguous aliases included, fail at startup
func (c *ClassifierConfig) Validate() error {
	if _, err := classifier.NewAliasTable(c.Categories, c.Intents); err != nil {
		return err
	}

	if _, err := classifier.NewRenderer(c.Templates); err != nil {
		return err
	}

	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 100 {
		return fmt.Errorf("fuzzy_threshold must be in (0, 100], got %g", c.FuzzyThreshold)
	}

	// The engine replaces a non-positive window with its default
	if c.DebounceSeconds <= 0 {
		return fmt.Errorf("debounce_seconds must be positive, got %d", c.DebounceSeconds)
	}

	return nil
}

// Validate validates delivery configuration
func (d *DeliveryConfig) Validate() error {
	if d.QueueDB == "" {
		return fmt.Errorf("queue_db cannot be empty")
	}

	if _, err := outbox.ParsePolicy(d.FlushPolicy); err != nil {
		return err
	}

	switch d.Mode {
	case delivery.ModeHTTP:
		if d.HTTP.Endpoint == "" {
			return fmt.Errorf("http endpoint cannot be empty in http mode")
		}
		if d.HTTP.Timeout < 1 {
			return fmt.Errorf("http timeout must be at least 1 second, got %d", d.HTTP.Timeout)
		}
	case delivery.ModeMQTT:
		if d.MQTT.Broker == "" || d.MQTT.Topic == "" {
			return fmt.Errorf("mqtt broker and topic cannot be empty in mqtt mode")
		}
	case delivery.ModeNATS:
		if len(d.NATS.URLs) == 0 || d.NATS.Subject == "" {
			return fmt.Errorf("nats urls and subject cannot be empty in nats mode")
		}
	case delivery.ModeRedis:
		if d.Redis.Addr == "" || d.Redis.Channel == "" {
			return fmt.Errorf("redis addr and channel cannot be empty in redis mode")
		}
	default:
		return fmt.Errorf("mode must be one of [http, mqtt, nats, redis], got '%s'", d.Mode)
	}

	for name, qos := range map[string]int{"mqtt": d.MQTT.QoS, "nats": d.NATS.QoS, "redis": d.Redis.QoS} {
		if _, err := delivery.ParseQoS(qos); err != nil {
			return fmt.Errorf("%s %w", name, err)
		}
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout/stderr is a file path
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// GetDialTimeoutDuration returns the websocket dial timeout as a time.Duration
func (r *RecognitionConfig) GetDialTimeoutDuration() time.Duration {
	return time.Duration(r.DialTimeout) * time.Second
}

// GetDrainTimeoutDuration returns the shutdown drain timeout as a time.Duration
func (r *RecognitionConfig) GetDrainTimeoutDuration() time.Duration {
	return time.Duration(r.DrainTimeout) * time.Second
}

// GetFrameDuration returns the capture frame length as a time.Duration
func (a *AudioConfig) GetFrameDuration() time.Duration {
	return time.Duration(a.FrameMS) * time.Millisecond
}

// GetDebounceWindow returns the debounce window as a time.Duration
func (c *ClassifierConfig) GetDebounceWindow() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}

// TranscribeConfig maps the recognition section onto the client configuration
func (c *Config) TranscribeConfig() transcribe.Config {
	return transcribe.Config{
		Region:         c.Recognition.Region,
		LanguageCode:   c.Recognition.LanguageCode,
		SampleRate:     c.Recognition.SampleRate,
		VocabularyName: c.Recognition.VocabularyName,
		QueueSize:      c.Recognition.QueueSize,
		DialTimeout:    c.Recognition.GetDialTimeoutDuration(),
		DrainTimeout:   c.Recognition.GetDrainTimeoutDuration(),
		Endpoint:       c.Recognition.Endpoint,
	}
}

// SourceConfig maps the audio section onto the capture configuration
func (c *Config) SourceConfig() audio.SourceConfig {
	return audio.SourceConfig{
		DeviceIndex:       c.Audio.DeviceIndex,
		CaptureSampleRate: c.Audio.CaptureSampleRate,
		StreamSampleRate:  c.Audio.StreamSampleRate,
		Channels:          c.Audio.Channels,
		FrameDuration:     c.Audio.GetFrameDuration(),
		MaxChunkBytes:     protocol.MaxAudioChunk,
	}
}

// EngineConfig maps the classifier section onto the engine configuration
func (c *Config) EngineConfig() classifier.Config {
	return classifier.Config{
		Categories:     c.Classifier.Categories,
		Intents:        c.Classifier.Intents,
		Templates:      c.Classifier.Templates,
		FuzzyThreshold: c.Classifier.FuzzyThreshold,
		DebounceWindow: c.Classifier.GetDebounceWindow(),
	}
}

// TransportConfig maps the delivery section onto the transport configuration
func (c *Config) TransportConfig() delivery.Config {
	d := c.Delivery
	return delivery.Config{
		Mode: d.Mode,
		HTTP: delivery.HTTPConfig{
			Endpoint: d.HTTP.Endpoint,
			Timeout:  time.Duration(d.HTTP.Timeout) * time.Second,
			Headers:  d.HTTP.Headers,
		},
		MQTT: delivery.MQTTConfig{
			Broker:     d.MQTT.Broker,
			ClientID:   d.MQTT.ClientID,
			Topic:      d.MQTT.Topic,
			EventTopic: d.MQTT.EventTopic,
			Username:   d.MQTT.Username,
			Password:   d.MQTT.Password,
			QoS:        d.MQTT.QoS,
		},
		NATS: delivery.NATSConfig{
			URLs:         d.NATS.URLs,
			Subject:      d.NATS.Subject,
			EventSubject: d.NATS.EventSubject,
			User:         d.NATS.User,
			Password:     d.NATS.Password,
			QoS:          d.NATS.QoS,
		},
		Redis: delivery.RedisConfig{
			Addr:         d.Redis.Addr,
			Username:     d.Redis.Username,
			Password:     d.Redis.Password,
			DB:           d.Redis.DB,
			Channel:      d.Redis.Channel,
			EventChannel: d.Redis.EventChannel,
			QoS:          d.Redis.QoS,
		},
	}
}
