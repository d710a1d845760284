package transcribe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/gorilla/websocket"

	"github.com/Navaneeth272001/ASR-Track-Tech/internal/protocol"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/signing"
)

func testClientConfig() Config {
	return Config{
		Region:         "us-east-1",
		LanguageCode:   "en-US",
		SampleRate:     16000,
		VocabularyName: "racetrack-classes",
	}
}

func TestNewClientValidation(t *testing.T) {
	provider := credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "")

	tests := []struct {
		name     string
		mutate   func(*Config)
		provider aws.CredentialsProvider
		errorMsg string
	}{
		{"valid", func(*Config) {}, provider, ""},
		{"missing region", func(c *Config) { c.Region = "" }, provider, "region cannot be empty"},
		{"missing language", func(c *Config) { c.LanguageCode = "" }, provider, "language code cannot be empty"},
		{"bad sample rate", func(c *Config) { c.SampleRate = 0 }, provider, "sample rate must be positive"},
		{"no credentials", func(*Config) {}, nil, "credentials provider cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testClientConfig()
			tt.mutate(&cfg)

			_, err := NewClient(cfg, tt.provider, nil, nil)
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.errorMsg, err)
			}
		})
	}
}

func TestPresignURL(t *testing.T) {
	provider := credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY", "token")
	client, err := NewClient(testClientConfig(), provider, nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	fixed := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)
	client.now = func() time.Time { return fixed }

	url, err := client.PresignURL(context.Background())
	if err != nil {
		t.Fatalf("PresignURL failed: %v", err)
	}

	expected, err := signing.Presign(signing.Credentials{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
		SessionToken:    "token",
	}, fixed, signing.Params{
		Region: "us-east-1",
		Query:  signing.StreamQuery("en-US", 16000, "racetrack-classes"),
	})
	if err != nil {
		t.Fatalf("Presign failed: %v", err)
	}

	if url != expected.URL {
		t.Errorf("url mismatch:\nexpected %s\ngot      %s", expected.URL, url)
	}
	for _, part := range []string{"vocabulary-name=racetrack-classes", "X-Amz-Security-Token=token", "sample-rate=16000"} {
		if !strings.Contains(url, part) {
			t.Errorf("Expected url to contain %q", part)
		}
	}
}

func TestPresignURLCredentialFailure(t *testing.T) {
	provider := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{}, errors.New("no credentials in chain")
	})
	client, err := NewClient(testClientConfig(), provider, nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Connect(context.Background(), func(Transcript) {})
	if !errors.Is(err, ErrSetup) {
		t.Errorf("Expected ErrSetup, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "no credentials in chain") {
		t.Errorf("Expected the provider error to be wrapped, got %v", err)
	}
}

func TestConnectThroughEndpointOverride(t *testing.T) {
	backend := newFakeBackend(t, func(conn *websocket.Conn, msg *protocol.Message, n int) bool {
		if isEndOfStream(msg) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return false
		}
		return true
	})
	cfg := testClientConfig()
	cfg.Endpoint = backend.url() + "/stream"
	provider := credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "")
	client, err := NewClient(cfg, provider, nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	stream, err := client.Connect(context.Background(), func(Transcript) {})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	u := backend.requestURL()
	if u == nil {
		t.Fatal("Backend saw no request")
	}
	if u.Path != "/stream" {
		t.Errorf("Expected the endpoint path, got %q", u.Path)
	}
	if u.Query().Get("X-Amz-Signature") == "" || u.Query().Get("language-code") != "en-US" {
		t.Error("Expected a signed request")
	}
}

func TestPresignURLInvalidEndpoint(t *testing.T) {
	cfg := testClientConfig()
	cfg.Endpoint = "ws://bad host:9000"
	client, err := NewClient(cfg, credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""), nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.PresignURL(context.Background())
	if !errors.Is(err, ErrSetup) || !strings.Contains(err.Error(), "invalid endpoint") {
		t.Errorf("Expected invalid endpoint error, got %v", err)
	}
}

func TestClientLogsComponentOnce(t *testing.T) {
	backend := newFakeBackend(t, func(conn *websocket.Conn, msg *protocol.Message, n int) bool {
		if isEndOfStream(msg) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return false
		}
		return true
	})
	cfg := testClientConfig()
	cfg.Endpoint = backend.url()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	client, err := NewClient(cfg, credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""), logger, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	stream, err := client.Connect(context.Background(), func(Transcript) {})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) < 3 {
		t.Fatalf("Expected connect, connected and closed lines, got %q", buf.String())
	}
	for _, line := range lines {
		if n := strings.Count(line, "component=transcribe"); n != 1 {
			t.Errorf("Expected one component attribute, got %d in %q", n, line)
		}
	}
}
