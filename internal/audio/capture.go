package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/Navaneeth272001/ASR-Track-Tech/internal/metrics"
)

// Sink receives PCM chunks from the capture thread. Push must not block.
type Sink interface {
	Push(chunk []byte) bool
}

// SourceConfig contains configuration for microphone capture
type SourceConfig struct {
	DeviceIndex       int // index into the capture device list, -1 for the system default
	CaptureSampleRate int
	StreamSampleRate  int
	Channels          int
	FrameDuration     time.Duration
	MaxChunkBytes     int
}

// Source captures float32 audio from a microphone, converts it to 16-bit mono
// PCM at the stream rate and pushes fixed-size chunks into a Sink.
type Source struct {
	config  SourceConfig
	sink    Sink
	chunker *Chunker
	logger  *slog.Logger
	metrics *metrics.Metrics

	mctx   *malgo.AllocatedContext
	device *malgo.Device

	framesIn atomic.Uint64
	pushed   atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	running bool
}

// SourceStats represents capture statistics
type SourceStats struct {
	Running       bool         `json:"running"`
	FramesIn      uint64       `json:"frames_in"`
	ChunksPushed  uint64       `json:"chunks_pushed"`
	ChunksDropped uint64       `json:"chunks_dropped"`
	Chunker       ChunkerStats `json:"chunker"`
}

// NewSource creates a capture source. No device is opened until Start.
func NewSource(config SourceConfig, sink Sink, logger *slog.Logger, m *metrics.Metrics) (*Source, error) {
	if sink == nil {
		return nil, errors.New("audio sink is required")
	}
	if config.CaptureSampleRate <= 0 || config.StreamSampleRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive (capture %d, stream %d)",
			config.CaptureSampleRate, config.StreamSampleRate)
	}
	if config.Channels <= 0 {
		config.Channels = 1
	}

	chunker, err := NewChunker(ChunkingConfig{
		SampleRate:    config.StreamSampleRate,
		FrameDuration: config.FrameDuration,
		MaxChunkBytes: config.MaxChunkBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Source{
		config:  config,
		sink:    sink,
		chunker: chunker,
		logger:  logger.With("component", "audio"),
		metrics: m,
	}, nil
}

// Start opens the capture device and begins delivering chunks to the sink
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("audio source already running")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		s.logger.Debug("Audio backend", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return fmt.Errorf("failed to init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(s.config.Channels)
	deviceConfig.SampleRate = uint32(s.config.CaptureSampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(s.config.FrameDuration / time.Millisecond)

	if s.config.DeviceIndex >= 0 {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			s.freeContext(mctx)
			return fmt.Errorf("failed to list capture devices: %w", err)
		}
		if s.config.DeviceIndex >= len(infos) {
			s.freeContext(mctx)
			return fmt.Errorf("capture device index %d out of range (%d devices)", s.config.DeviceIndex, len(infos))
		}
		deviceConfig.Capture.DeviceID = infos[s.config.DeviceIndex].ID.Pointer()
		s.logger.Info("Using capture device",
			slog.Int("index", s.config.DeviceIndex),
			slog.String("name", infos[s.config.DeviceIndex].Name()))
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.HandleInput(input)
		},
	})
	if err != nil {
		s.freeContext(mctx)
		return fmt.Errorf("failed to init capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		s.freeContext(mctx)
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	s.mctx = mctx
	s.device = device
	s.running = true

	s.logger.Info("Audio capture started",
		slog.Int("capture_rate", s.config.CaptureSampleRate),
		slog.Int("stream_rate", s.config.StreamSampleRate),
		slog.Duration("frame", s.config.FrameDuration))

	return nil
}

// HandleInput processes one capture callback buffer of little-endian float32
// samples. It runs on the audio thread and never blocks.
func (s *Source) HandleInput(input []byte) {
	if len(input) == 0 {
		return
	}
	s.framesIn.Add(1)

	frame := Frame{
		Samples:    DecodeF32(input),
		SampleRate: s.config.CaptureSampleRate,
		Channels:   s.config.Channels,
	}

	for _, chunk := range s.chunker.Write(frame.PCM16(s.config.StreamSampleRate)) {
		s.push(chunk)
	}
}

func (s *Source) push(chunk []byte) {
	ok := s.sink.Push(chunk)
	if ok {
		s.pushed.Add(1)
	} else {
		s.dropped.Add(1)
	}
	s.metrics.RecordChunkCaptured(!ok)
}

// Stop halts the device and pushes any partial chunk. Safe to call when not running.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	var errs []error
	if err := s.device.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop capture device: %w", err))
	}
	s.device.Uninit()
	s.device = nil

	if err := s.freeContext(s.mctx); err != nil {
		errs = append(errs, err)
	}
	s.mctx = nil

	if tail := s.chunker.Flush(); tail != nil {
		s.push(tail)
	}

	s.logger.Info("Audio capture stopped",
		slog.Uint64("frames", s.framesIn.Load()),
		slog.Uint64("dropped", s.dropped.Load()))

	return errors.Join(errs...)
}

func (s *Source) freeContext(mctx *malgo.AllocatedContext) error {
	if mctx == nil {
		return nil
	}
	err := mctx.Uninit()
	mctx.Free()
	if err != nil {
		return fmt.Errorf("failed to release audio context: %w", err)
	}
	return nil
}

// GetStats returns current capture statistics
func (s *Source) GetStats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		Running:       running,
		FramesIn:      s.framesIn.Load(),
		ChunksPushed:  s.pushed.Load(),
		ChunksDropped: s.dropped.Load(),
		Chunker:       s.chunker.GetStats(),
	}
}

// ListCaptureDevices returns the names of the available capture devices in
// index order, for choosing DeviceIndex.
func ListCaptureDevices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}

	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}
