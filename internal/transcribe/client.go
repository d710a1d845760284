package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/Navaneeth272001/ASR-Track-Tech/internal/metrics"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/signing"
)

// Config contains recognition client configuration
type Config struct {
	Region         string
	LanguageCode   string
	SampleRate     int
	VocabularyName string
	QueueSize      int
	DialTimeout    time.Duration
	DrainTimeout   time.Duration

	// Endpoint overrides the regional streaming URL (ws:// or wss://), e.g.
	// for a local fake backend
	Endpoint string
}

// Client opens recognition streams with credentials resolved per connection
type Client struct {
	config      Config
	credentials aws.CredentialsProvider
	logger      *slog.Logger
	streamLog   *slog.Logger // untagged; Open adds the component
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewClient creates a recognition client
func NewClient(config Config, credentials aws.CredentialsProvider, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if config.Region == "" {
		return nil, errors.New("region cannot be empty")
	}
	if config.LanguageCode == "" {
		return nil, errors.New("language code cannot be empty")
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if credentials == nil {
		return nil, errors.New("credentials provider cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:      config,
		credentials: credentials,
		logger:      logger.With("component", "transcribe"),
		streamLog:   logger,
		metrics:     m,
		now:         time.Now,
	}, nil
}

// PresignURL resolves credentials and builds the signed websocket URL
func (c *Client) PresignURL(ctx context.Context) (string, error) {
	creds, err := c.credentials.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to resolve credentials: %w", ErrSetup, err)
	}

	params := signing.Params{
		Region: c.config.Region,
		Query:  signing.StreamQuery(c.config.LanguageCode, c.config.SampleRate, c.config.VocabularyName),
	}
	if c.config.Endpoint != "" {
		u, err := url.Parse(c.config.Endpoint)
		if err != nil {
			return "", fmt.Errorf("%w: invalid endpoint %q: %w", ErrSetup, c.config.Endpoint, err)
		}
		params.Scheme, params.Host, params.Path = u.Scheme, u.Host, u.Path
	}

	presigned, err := signing.Presign(signing.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, c.now(), params)
	if err != nil {
		return "", fmt.Errorf("%w: failed to presign stream url: %w", ErrSetup, err)
	}
	return presigned.URL, nil
}

// Connect opens a new recognition stream delivering final transcripts to handler
func (c *Client) Connect(ctx context.Context, handler Handler) (*Stream, error) {
	signedURL, err := c.PresignURL(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Connecting to recognition backend",
		slog.String("region", c.config.Region),
		slog.String("language", c.config.LanguageCode),
		slog.Int("sample_rate", c.config.SampleRate),
		slog.String("vocabulary", c.config.VocabularyName))

	return Open(ctx, signedURL, handler, StreamOptions{
		QueueSize:    c.config.QueueSize,
		DialTimeout:  c.config.DialTimeout,
		DrainTimeout: c.config.DrainTimeout,
		Logger:       c.streamLog,
		Metrics:      c.metrics,
	})
}
