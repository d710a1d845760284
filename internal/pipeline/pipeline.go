package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Navaneeth272001/ASR-Track-Tech/internal/audio"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/classifier"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/delivery"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/outbox"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/transcribe"
)

// Session is an open recognition stream
type Session interface {
	Push(chunk []byte) bool
	Done() <-chan struct{}
	Wait() error
	Close() error
	GetStats() transcribe.StreamStats
}

// Connector opens recognition sessions
type Connector interface {
	Connect(ctx context.Context, handler transcribe.Handler) (Session, error)
}

// ConnectorFunc adapts a function to Connector
type ConnectorFunc func(ctx context.Context, handler transcribe.Handler) (Session, error)

// Connect calls f
func (f ConnectorFunc) Connect(ctx context.Context, handler transcribe.Handler) (Session, error) {
	return f(ctx, handler)
}

// Capture is a running audio source
type Capture interface {
	Start() error
	Stop() error
	GetStats() audio.SourceStats
}

// CaptureFactory builds the audio source feeding sink
type CaptureFactory func(sink audio.Sink) (Capture, error)

// Deliverer is the outbox side of the pipeline
type Deliverer interface {
	Deliver(ctx context.Context, msg *delivery.Message) error
	Flush(ctx context.Context) outbox.FlushResult
}

// Pipeline states
const (
	StateIdle     = "idle"
	StateStarting = "starting"
	StateRunning  = "running"
	StateStopping = "stopping"
	StateStopped  = "stopped"
	StateFailed   = "failed"
)

// Config wires the pipeline's collaborators
type Config struct {
	Connector  Connector
	NewCapture CaptureFactory
	Engine     *classifier.Engine
	Outbox     Deliverer
	Transport  delivery.Transport
	Logger     *slog.Logger
}

// Stats is a snapshot of the pipeline for the monitoring API
type Stats struct {
	State          string                  `json:"state"`
	StartedAt      time.Time               `json:"started_at"`
	Transcripts    uint64                  `json:"transcripts"`
	Messages       uint64                  `json:"messages"`
	DeliveryErrors uint64                  `json:"delivery_errors"`
	Stream         *transcribe.StreamStats `json:"stream,omitempty"`
	Capture        *audio.SourceStats      `json:"capture,omitempty"`
}

// Pipeline sequences capture, recognition, classification and delivery for
// one run: transport connect, startup flush, stream, capture, then teardown
// in reverse when the context ends, Stop is called or the stream fails.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once

	mu        sync.RWMutex
	state     string
	startedAt time.Time
	session   Session
	capture   Capture

	transcripts    atomic.Uint64
	messages       atomic.Uint64
	deliveryErrors atomic.Uint64
}

// New validates the collaborators and creates an idle pipeline
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Connector == nil:
		return nil, errors.New("connector is required")
	case cfg.NewCapture == nil:
		return nil, errors.New("capture factory is required")
	case cfg.Engine == nil:
		return nil, errors.New("classification engine is required")
	case cfg.Outbox == nil:
		return nil, errors.New("outbox is required")
	case cfg.Transport == nil:
		return nil, errors.New("transport is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "pipeline"),
		stop:   make(chan struct{}),
		state:  StateIdle,
	}, nil
}

// Run blocks until ctx is done, Stop is called or the recognition stream
// fails. A stream failure is returned; a requested shutdown returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	p.setState(StateStarting)
	p.mu.Lock()
	p.startedAt = time.Now()
	p.mu.Unlock()

	// A transport that is down now may come back; the outbox holds messages
	// until it does
	if err := p.cfg.Transport.Connect(ctx); err != nil {
		p.logger.Warn("Transport connect failed, messages will be queued", "error", err)
	}

	res := p.cfg.Outbox.Flush(ctx)
	p.logger.Info("Startup flush complete",
		slog.Int("sent", res.Sent),
		slog.Int64("remaining", res.Remaining))

	session, err := p.cfg.Connector.Connect(ctx, p.handleTranscript(ctx))
	if err != nil {
		p.setState(StateFailed)
		p.closeTransport()
		return fmt.Errorf("failed to open recognition stream: %w", err)
	}

	capture, err := p.cfg.NewCapture(session)
	if err == nil {
		err = capture.Start()
	}
	if err != nil {
		p.setState(StateFailed)
		p.closeSession(session)
		p.closeTransport()
		return fmt.Errorf("failed to start audio capture: %w", err)
	}

	p.mu.Lock()
	p.session, p.capture = session, capture
	p.mu.Unlock()
	p.setState(StateRunning)
	p.logger.Info("Pipeline running")

	var runErr error
	select {
	case <-ctx.Done():
		p.logger.Info("Context cancelled, shutting down")
	case <-p.stop:
		p.logger.Info("Stop requested, shutting down")
	case <-session.Done():
		runErr = session.Wait()
		if runErr == nil {
			runErr = transcribe.ErrClosed
		}
		p.logger.Error("Recognition stream failed", "error", runErr)
	}

	p.setState(StateStopping)
	if err := capture.Stop(); err != nil {
		p.logger.Error("Failed to stop capture", "error", err)
	}
	if err := p.closeSession(session); err != nil && runErr == nil {
		p.logger.Warn("Recognition stream closed with error", "error", err)
	}
	p.closeTransport()

	if runErr != nil {
		p.setState(StateFailed)
		return runErr
	}
	p.setState(StateStopped)
	return nil
}

// Stop asks a running pipeline to shut down. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// handleTranscript is called on the stream's receive goroutine, which makes
// it the single writer of the engine's debounce state and of the outbox
func (p *Pipeline) handleTranscript(ctx context.Context) transcribe.Handler {
	return func(t transcribe.Transcript) {
		p.transcripts.Add(1)
		p.logger.Info("Transcript", slog.String("text", t.Text))

		msgs := p.cfg.Engine.Classify(t.Text, t.CapturedAt)
		for i := range msgs {
			p.messages.Add(1)
			if err := p.cfg.Outbox.Deliver(ctx, &msgs[i]); err != nil {
				p.deliveryErrors.Add(1)
				p.logger.Error("Announcement lost",
					slog.String("message_id", msgs[i].MessageID),
					slog.String("text", msgs[i].MessageText),
					"error", err)
			}
		}
	}
}

func (p *Pipeline) closeSession(s Session) error {
	err := s.Close()
	st := s.GetStats()
	p.logger.Info("Recognition stream closed",
		slog.Uint64("frames_sent", st.FramesSent),
		slog.Uint64("bytes_sent", st.BytesSent),
		slog.Uint64("transcripts", st.Transcripts),
		slog.Uint64("chunks_dropped", st.Queue.Dropped))
	return err
}

func (p *Pipeline) closeTransport() {
	if err := p.cfg.Transport.Close(); err != nil {
		p.logger.Error("Failed to close transport", "error", err)
	}
}

func (p *Pipeline) setState(s string) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// State returns the current lifecycle state
func (p *Pipeline) State() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Stats returns a snapshot of the pipeline
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Stats{
		State:          p.state,
		StartedAt:      p.startedAt,
		Transcripts:    p.transcripts.Load(),
		Messages:       p.messages.Load(),
		DeliveryErrors: p.deliveryErrors.Load(),
	}
	if p.session != nil {
		ss := p.session.GetStats()
		st.Stream = &ss
	}
	if p.capture != nil {
		cs := p.capture.GetStats()
		st.Capture = &cs
	}
	return st
}
