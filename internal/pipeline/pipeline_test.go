package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Navaneeth272001/ASR-Track-Tech/internal/audio"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/classifier"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/delivery"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/outbox"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/transcribe"
)

// callLog records the order collaborators are called in
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.calls, ",")
}

type fakeSession struct {
	log     *callLog
	done    chan struct{}
	waitErr error
	mu      sync.Mutex
	chunks  int
}

func (s *fakeSession) Push(chunk []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks++
	return true
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }
func (s *fakeSession) Wait() error           { return s.waitErr }

func (s *fakeSession) Close() error {
	s.log.add("session.close")
	return s.waitErr
}

func (s *fakeSession) GetStats() transcribe.StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transcribe.StreamStats{FramesSent: uint64(s.chunks)}
}

// fail ends the session the way a fatal backend error does
func (s *fakeSession) fail(err error) {
	s.waitErr = err
	close(s.done)
}

type fakeCapture struct {
	log      *callLog
	sink     audio.Sink
	startErr error
}

func (c *fakeCapture) Start() error {
	c.log.add("capture.start")
	if c.startErr != nil {
		return c.startErr
	}
	c.sink.Push(make([]byte, 640))
	return nil
}

func (c *fakeCapture) Stop() error {
	c.log.add("capture.stop")
	return nil
}

func (c *fakeCapture) GetStats() audio.SourceStats {
	return audio.SourceStats{Running: true, ChunksPushed: 1}
}

type fakeOutbox struct {
	log        *callLog
	mu         sync.Mutex
	delivered  []delivery.Message
	deliverErr error
}

func (o *fakeOutbox) Deliver(ctx context.Context, msg *delivery.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered = append(o.delivered, *msg)
	return o.deliverErr
}

func (o *fakeOutbox) Flush(ctx context.Context) outbox.FlushResult {
	o.log.add("outbox.flush")
	return outbox.FlushResult{}
}

func (o *fakeOutbox) messages() []delivery.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]delivery.Message(nil), o.delivered...)
}

type fakeTransport struct {
	log        *callLog
	connectErr error
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	t.log.add("transport.connect")
	return t.connectErr
}

func (t *fakeTransport) Publish(ctx context.Context, destination string, payload []byte, qos delivery.QoS) error {
	return nil
}

func (t *fakeTransport) Close() error {
	t.log.add("transport.close")
	return nil
}

type harness struct {
	log       *callLog
	session   *fakeSession
	capture   *fakeCapture
	outbox    *fakeOutbox
	transport *fakeTransport
	handler   chan transcribe.Handler
	pipeline  *Pipeline
}

func newHarness(t *testing.T, connectErr error) *harness {
	t.Helper()

	log := &callLog{}
	h := &harness{
		log:       log,
		session:   &fakeSession{log: log, done: make(chan struct{})},
		capture:   &fakeCapture{log: log},
		outbox:    &fakeOutbox{log: log},
		transport: &fakeTransport{log: log},
		handler:   make(chan transcribe.Handler, 1),
	}

	engine, err := classifier.NewEngine(classifier.Config{
		Categories: []classifier.Category{{Name: "Super Pro", ID: 1, Aliases: []string{"supro"}}},
		Intents:    []classifier.Intent{{Name: "CLASS_TO_LANES", Phrases: []string{"to the lanes"}}},
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	connector := ConnectorFunc(func(ctx context.Context, handler transcribe.Handler) (Session, error) {
		log.add("stream.connect")
		if connectErr != nil {
			return nil, connectErr
		}
		h.handler <- handler
		return h.session, nil
	})

	h.pipeline, err = New(Config{
		Connector: connector,
		NewCapture: func(sink audio.Sink) (Capture, error) {
			h.capture.sink = sink
			return h.capture, nil
		},
		Engine:    engine,
		Outbox:    h.outbox,
		Transport: h.transport,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return h
}

func (h *harness) run(ctx context.Context) chan error {
	errc := make(chan error, 1)
	go func() { errc <- h.pipeline.Run(ctx) }()
	return errc
}

func waitRun(t *testing.T, errc chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func waitHandler(t *testing.T, h *harness) transcribe.Handler {
	t.Helper()
	select {
	case handler := <-h.handler:
		return handler
	case <-time.After(5 * time.Second):
		t.Fatal("stream was never connected")
		return nil
	}
}

func waitState(t *testing.T, p *Pipeline, state string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for p.State() != state {
		if time.Now().After(deadline) {
			t.Fatalf("Expected state %s, still %s", state, p.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPipelineDeliversAnnouncements(t *testing.T) {
	h := newHarness(t, nil)
	errc := h.run(context.Background())

	handler := waitHandler(t, h)
	waitState(t, h.pipeline, StateRunning)

	now := time.Now()
	handler(transcribe.Transcript{Text: "Supro to the lanes", CapturedAt: now})
	handler(transcribe.Transcript{Text: "supro, to the lanes please", CapturedAt: now.Add(time.Second)})
	handler(transcribe.Transcript{Text: "nothing to see here", CapturedAt: now.Add(2 * time.Second)})

	msgs := h.outbox.messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected exactly one announcement, got %d", len(msgs))
	}
	if msgs[0].Category != "Super Pro" || msgs[0].Intent != "CLASS_TO_LANES" || msgs[0].MessageText != "Super Pro to the lanes" {
		t.Errorf("Unexpected announcement %+v", msgs[0])
	}

	st := h.pipeline.Stats()
	if st.Transcripts != 3 || st.Messages != 1 || st.Stream == nil || st.Capture == nil {
		t.Errorf("Unexpected stats %+v", st)
	}
	if st.Stream.FramesSent != 1 {
		t.Errorf("Expected the capture chunk to reach the session, got %d", st.Stream.FramesSent)
	}

	h.pipeline.Stop()
	h.pipeline.Stop()
	if err := waitRun(t, errc); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}

	want := "transport.connect,outbox.flush,stream.connect,capture.start,capture.stop,session.close,transport.close"
	if got := h.log.String(); got != want {
		t.Errorf("Expected lifecycle %s, got %s", want, got)
	}
	if h.pipeline.State() != StateStopped {
		t.Errorf("Expected stopped, got %s", h.pipeline.State())
	}
}

func TestPipelineContextCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := h.run(ctx)

	waitHandler(t, h)
	waitState(t, h.pipeline, StateRunning)
	cancel()

	if err := waitRun(t, errc); err != nil {
		t.Errorf("Expected nil on cancellation, got %v", err)
	}
}

func TestPipelineStreamFailure(t *testing.T) {
	h := newHarness(t, nil)
	errc := h.run(context.Background())

	waitHandler(t, h)
	waitState(t, h.pipeline, StateRunning)

	exc := &transcribe.ExceptionError{Type: "BadRequestException", Message: "bad audio"}
	h.session.fail(exc)

	err := waitRun(t, errc)
	var got *transcribe.ExceptionError
	if !errors.As(err, &got) || got.Type != "BadRequestException" {
		t.Errorf("Expected the exception to surface, got %v", err)
	}
	if h.pipeline.State() != StateFailed {
		t.Errorf("Expected failed state, got %s", h.pipeline.State())
	}
	if !strings.HasSuffix(h.log.String(), "capture.stop,session.close,transport.close") {
		t.Errorf("Expected full teardown, got %s", h.log.String())
	}
}

func TestPipelineSetupFailures(t *testing.T) {
	t.Run("stream connect", func(t *testing.T) {
		h := newHarness(t, transcribe.ErrSetup)
		err := h.pipeline.Run(context.Background())
		if !errors.Is(err, transcribe.ErrSetup) || !strings.Contains(err.Error(), "failed to open recognition stream") {
			t.Errorf("Expected setup error, got %v", err)
		}
		if got := h.log.String(); got != "transport.connect,outbox.flush,stream.connect,transport.close" {
			t.Errorf("Unexpected lifecycle %s", got)
		}
	})

	t.Run("capture start", func(t *testing.T) {
		h := newHarness(t, nil)
		h.capture.startErr = errors.New("no capture device")
		err := h.pipeline.Run(context.Background())
		if err == nil || !strings.Contains(err.Error(), "failed to start audio capture: no capture device") {
			t.Errorf("Expected capture error, got %v", err)
		}
		if !strings.HasSuffix(h.log.String(), "capture.start,session.close,transport.close") {
			t.Errorf("Expected the stream to be closed, got %s", h.log.String())
		}
	})
}

func TestPipelineTransportDownIsNotFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.transport.connectErr = errors.New("connection refused")
	h.outbox.deliverErr = errors.New("disk full")
	errc := h.run(context.Background())

	handler := waitHandler(t, h)
	waitState(t, h.pipeline, StateRunning)
	handler(transcribe.Transcript{Text: "supro to the lanes", CapturedAt: time.Now()})

	if st := h.pipeline.Stats(); st.DeliveryErrors != 1 {
		t.Errorf("Expected the lost message to be counted, got %+v", st)
	}

	h.pipeline.Stop()
	if err := waitRun(t, errc); err != nil {
		t.Errorf("Unexpected error %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	if err == nil || !strings.Contains(err.Error(), "connector is required") {
		t.Errorf("Expected connector error, got %v", err)
	}
}
