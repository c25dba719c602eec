package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/voicenotehq/voicenote/internal/config"
)

// Acquisition failures are terminal for the current attempt. The caller
// surfaces them to the user and stays in its previous state; there is no
// retry at this layer.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrStreamOpen        = errors.New("capture stream already open")
)

// FrameSink receives mono float32 PCM frames from the device callback.
// Implementations must not block.
type FrameSink func(frame []float32)

// DeviceHandle represents a started capture device.
type DeviceHandle interface {
	Stop() error
}

// Backend abstracts the platform microphone. The real implementation sits on
// miniaudio; tests inject a fake that feeds synthetic frames.
type Backend interface {
	Start(sampleRate, channels, frameSize int, sink FrameSink) (DeviceHandle, error)
	Type() BackendType
}

// BackendType identifies a capture backend implementation.
type BackendType string

const (
	BackendTypeMalgo BackendType = "malgo"
	BackendTypeAuto  BackendType = "auto"
)

// DefaultBackend returns the platform backend for the configured type.
// Only the miniaudio backend exists today, so "auto" resolves to it.
func DefaultBackend(cfg *config.Config) Backend {
	switch strings.ToLower(cfg.Audio.Backend) {
	case string(BackendTypeMalgo), string(BackendTypeAuto), "":
		return NewMalgoBackend()
	default:
		return NewMalgoBackend()
	}
}

// Service owns microphone acquisition and release. At most one stream is
// open at a time; only the session that opened it may close it.
type Service struct {
	cfg     *config.Config
	backend Backend

	mu     sync.Mutex
	active *Stream
	device DeviceHandle
}

// New creates a capture service. A nil backend selects the platform default.
func New(cfg *config.Config, backend Backend) *Service {
	if backend == nil {
		backend = DefaultBackend(cfg)
	}
	return &Service{cfg: cfg, backend: backend}
}

// Open acquires the microphone and returns the live stream. The first call
// per process may trigger the platform permission prompt. On failure the
// returned error wraps ErrPermissionDenied or ErrDeviceUnavailable and no
// stream is left open.
func (s *Service) Open() (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, ErrStreamOpen
	}

	st := newStream(s.cfg.Audio.SampleRate)
	device, err := s.backend.Start(s.cfg.Audio.SampleRate, s.cfg.Audio.Channels, s.cfg.Audio.FrameSize, st.push)
	if err != nil {
		return nil, classifyOpenError(err)
	}

	s.active = st
	s.device = device

	slog.Debug("Capture stream opened", "sample_rate", st.sampleRate, "backend", s.backend.Type())
	return st, nil
}

// Close releases the stream and the underlying device. Idempotent: closing
// an already-closed or foreign stream is a no-op.
func (s *Service) Close(st *Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st == nil || s.active != st {
		return
	}

	if s.device != nil {
		if err := s.device.Stop(); err != nil {
			slog.Warn("Capture device stop failed", "error", err)
		}
		s.device = nil
	}
	s.active.close()
	s.active = nil

	slog.Debug("Capture stream released")
}

// classifyOpenError maps a raw backend failure onto the acquisition error
// taxonomy so callers can pick the right user notice.
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") || strings.Contains(msg, "not authorized") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
