package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Navaneeth272001/ASR-Track-Tech/internal/audio"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/metrics"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/protocol"
)

// StreamOptions tune a single streaming connection
type StreamOptions struct {
	QueueSize    int           // bounded audio queue capacity in chunks
	DialTimeout  time.Duration // handshake timeout
	WriteTimeout time.Duration // per-frame write deadline
	DrainTimeout time.Duration // how long Close waits for queued audio and final results
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

func (o *StreamOptions) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stream is one open recognition connection. Audio goes in through Push,
// finalized transcripts come out through the Handler. A sender goroutine and
// a receive goroutine run until Close or a fatal error.
type Stream struct {
	conn    *websocket.Conn
	queue   *audio.Queue
	handler Handler
	opts    StreamOptions
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	group        *errgroup.Group
	done         <-chan struct{}
	senderDone   chan struct{}
	receiverDone chan struct{}

	writeMu sync.Mutex
	closing atomic.Bool

	closeOnce sync.Once
	closeErr  error

	// Statistics
	framesSent  atomic.Uint64
	bytesSent   atomic.Uint64
	transcripts atomic.Uint64
	startedAt   time.Time
}

// StreamStats represents stream statistics
type StreamStats struct {
	Connected   bool             `json:"connected"`
	FramesSent  uint64           `json:"frames_sent"`
	BytesSent   uint64           `json:"bytes_sent"`
	Transcripts uint64           `json:"transcripts"`
	Uptime      time.Duration    `json:"uptime"`
	Queue       audio.QueueStats `json:"queue"`
}

// Open dials a presigned streaming URL and starts the sender and receive
// loops. Every failure wraps ErrSetup.
func Open(ctx context.Context, url string, handler Handler, opts StreamOptions) (*Stream, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: transcript handler is required", ErrSetup)
	}
	opts.setDefaults()

	dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.DialTimeout,
	}
	conn, resp, err := dialer.DialContext(dialCtx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: websocket dial failed (status %d): %w", ErrSetup, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: websocket dial failed: %w", ErrSetup, err)
	}

	g, gctx := errgroup.WithContext(context.Background())
	s := &Stream{
		conn:         conn,
		queue:        audio.NewQueue(opts.QueueSize),
		handler:      handler,
		opts:         opts,
		logger:       opts.Logger.With("component", "transcribe"),
		metrics:      opts.Metrics,
		now:          time.Now,
		group:        g,
		done:         gctx.Done(),
		senderDone:   make(chan struct{}),
		receiverDone: make(chan struct{}),
		startedAt:    time.Now(),
	}

	g.Go(s.sendLoop)
	g.Go(s.receiveLoop)

	s.metrics.SetStreamConnected(true)
	s.logger.Info("Recognition stream connected", slog.Int("queue_size", opts.QueueSize))

	return s, nil
}

// Push hands a PCM chunk to the sender without blocking. It reports false
// when the chunk was dropped.
func (s *Stream) Push(chunk []byte) bool {
	ok := s.queue.Push(chunk)
	s.metrics.SetQueueDepth(len(s.queue.C()))
	return ok
}

// Done is closed when either loop fails or both have exited
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until both loops exit and returns the first error. Without a
// fatal error the sender only exits after Close.
func (s *Stream) Wait() error {
	return s.group.Wait()
}

// Close ends the audio stream: the queue is closed, the sender drains it and
// sends the end-of-stream frame, the receiver collects final results, then
// the socket is closed. Safe to call more than once; every call returns the
// same result.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.queue.Close()

		drainCtx, cancel := context.WithTimeout(context.Background(), s.opts.DrainTimeout)
		defer cancel()

		select {
		case <-s.senderDone:
		case <-drainCtx.Done():
			s.logger.Warn("Audio drain timed out", slog.Int("queued", len(s.queue.C())))
		}

		// Final results arrive after the end-of-stream frame
		select {
		case <-s.receiverDone:
		case <-s.done:
		case <-drainCtx.Done():
		}

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()

		s.closeErr = s.group.Wait()
		s.metrics.SetStreamConnected(false)

		s.logger.Info("Recognition stream closed",
			slog.Uint64("frames_sent", s.framesSent.Load()),
			slog.Uint64("transcripts", s.transcripts.Load()))
	})
	return s.closeErr
}

func (s *Stream) sendLoop() error {
	defer close(s.senderDone)

	for draining := true; draining; {
		select {
		case chunk, ok := <-s.queue.C():
			if !ok {
				draining = false
				break
			}
			frames, err := protocol.MarshalAudioEvents(chunk)
			if err != nil {
				s.conn.Close()
				return fmt.Errorf("failed to frame audio event: %w", err)
			}
			for _, frame := range frames {
				if err := s.writeFrame(frame); err != nil {
					s.conn.Close()
					return err
				}
			}
		case <-s.done:
			// The receiver failed; the connection is gone
			return nil
		}
	}

	// An empty audio event tells the backend the audio is finished
	eos, err := protocol.NewAudioEvent(nil).MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to frame audio event: %w", err)
	}
	if err := s.writeFrame(eos); err != nil {
		return err
	}
	s.logger.Debug("End-of-stream frame sent")
	return nil
}

func (s *Stream) writeFrame(frame []byte) error {
	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	err := s.conn.WriteMessage(websocket.BinaryMessage, frame)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send audio event: %w", err)
	}

	s.framesSent.Add(1)
	s.bytesSent.Add(uint64(len(frame)))
	s.metrics.RecordFrameSent(len(frame))
	return nil
}

func (s *Stream) receiveLoop() error {
	defer close(s.receiverDone)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrClosed
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}

		if messageType != websocket.BinaryMessage {
			s.logger.Debug("Ignoring non-binary message", slog.Int("type", messageType))
			continue
		}

		if err := s.handleFrame(data); err != nil {
			s.conn.Close()
			return err
		}
	}
}

// handleFrame validates and dispatches one inbound frame. A non-nil error is
// fatal to the connection.
func (s *Stream) handleFrame(data []byte) error {
	msg, err := protocol.Unmarshal(data)
	if err != nil {
		s.metrics.RecordIntegrityError()
		s.logger.Error("Rejected inbound frame", "error", err, slog.Int("size", len(data)))
		return err
	}

	if msg.IsException() {
		exc := NewExceptionError(msg)
		s.metrics.RecordException(exc.Type)
		s.logger.Error("Recognition backend exception",
			slog.String("type", exc.Type),
			slog.String("message", exc.Message))
		return exc
	}

	if msg.MessageType() != protocol.MessageTypeEvent || msg.EventType() != protocol.EventTypeTranscript {
		s.logger.Debug("Ignoring event", slog.String("message", msg.String()))
		return nil
	}

	transcripts, err := ParseTranscriptEvent(msg.Payload, s.now())
	if err != nil {
		s.metrics.RecordIntegrityError()
		s.logger.Error("Rejected transcript event", "error", err, slog.Int("size", len(msg.Payload)))
		return err
	}

	for _, t := range transcripts {
		s.transcripts.Add(1)
		s.metrics.RecordTranscript()
		s.logger.Debug("Final transcript", slog.String("text", t.Text))
		s.handler(t)
	}
	return nil
}

// GetStats returns current stream statistics
func (s *Stream) GetStats() StreamStats {
	connected := !s.closing.Load()
	select {
	case <-s.done:
		connected = false
	default:
	}

	return StreamStats{
		Connected:   connected,
		FramesSent:  s.framesSent.Load(),
		BytesSent:   s.bytesSent.Load(),
		Transcripts: s.transcripts.Load(),
		Uptime:      time.Since(s.startedAt),
		Queue:       s.queue.GetStats(),
	}
}
