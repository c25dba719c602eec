package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voicenotehq/voicenote/internal/capture"
	"github.com/voicenotehq/voicenote/internal/config"
	"github.com/voicenotehq/voicenote/internal/encode"
	"github.com/voicenotehq/voicenote/internal/notify"
	"github.com/voicenotehq/voicenote/internal/playback"
	"github.com/voicenotehq/voicenote/internal/spectrum"
)

// State is the recording lifecycle state. No terminal state: RECORDING and
// DONE stay mutually reachable through the single toggle action.
type State string

const (
	StateIdle      State = "IDLE"
	StateRecording State = "RECORDING"
	StateDone      State = "DONE"
)

// Info is a snapshot of the session for status reporting.
type Info struct {
	State         State          `json:"state"`
	PlaybackState playback.State `json:"playback_state"`
	StartedAt     time.Time      `json:"started_at,omitempty"`
	ArtifactBytes int            `json:"artifact_bytes"`
	ArtifactMIME  string         `json:"artifact_mime,omitempty"`
}

// Options configures a session. Zero-value fields select the platform
// defaults; tests inject fakes.
type Options struct {
	Backend       capture.Backend
	Player        playback.Player
	Notifier      notify.Notifier
	OnStateChange func(State)
	OnFrame       func(spectrum.Frame)
	Scheduler     func() spectrum.Scheduler
}

// Session owns the idle/recording/done state machine and coordinates
// capture, analysis, encoding, and playback. One instance per process.
type Session struct {
	cfg      *config.Config
	capture  *capture.Service
	analyzer *spectrum.Analyzer
	playback *playback.Controller
	notifier notify.Notifier
	onState  func(State)
	onFrame  func(spectrum.Frame)

	mu        sync.Mutex
	state     State
	busy      bool
	stream    *capture.Stream
	encoder   *encode.Encoder
	visual    *spectrum.Handle
	startedAt time.Time
}

// New creates the session in the idle state.
func New(cfg *config.Config, opts Options) *Session {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLog()
	}
	player := opts.Player
	if player == nil {
		player = playback.NewBeepPlayer()
	}

	analyzer := spectrum.New(cfg)
	if opts.Scheduler != nil {
		analyzer.SetSchedulerFactory(opts.Scheduler)
	}

	return &Session{
		cfg:      cfg,
		capture:  capture.New(cfg, opts.Backend),
		analyzer: analyzer,
		playback: playback.NewController(player),
		notifier: notifier,
		onState:  opts.OnStateChange,
		onFrame:  opts.OnFrame,
		state:    StateIdle,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) PlaybackState() playback.State {
	return s.playback.State()
}

// Artifact returns the last finalized clip, or nil before any recording
// completes.
func (s *Session) Artifact() *encode.Artifact {
	return s.playback.Artifact()
}

// Snapshot returns the current session info for status reporting.
func (s *Session) Snapshot() Info {
	s.mu.Lock()
	state := s.state
	startedAt := s.startedAt
	s.mu.Unlock()

	info := Info{
		State:         state,
		PlaybackState: s.playback.State(),
	}
	if state == StateRecording {
		info.StartedAt = startedAt
	}
	if artifact := s.playback.Artifact(); artifact != nil {
		info.ArtifactBytes = artifact.Size()
		info.ArtifactMIME = artifact.MIME()
	}
	return info
}

// ToggleRecording starts a recording from idle/done or stops the one in
// progress. Always returns normally: failures are converted to user
// notices, never surfaced as faults. A toggle arriving while a previous
// transition is still settling is rejected, not queued, so streams can
// never overlap.
func (s *Session) ToggleRecording(ctx context.Context) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		s.notifier.Notify(notify.KindBusy, "recorder is busy, previous action still settling")
		return
	}
	s.busy = true
	state := s.state
	s.mu.Unlock()

	var next State
	var changed bool
	switch state {
	case StateIdle, StateDone:
		next, changed = s.startRecording()
	case StateRecording:
		next, changed = s.stopRecording(ctx)
	}

	s.mu.Lock()
	if changed {
		s.state = next
	}
	s.busy = false
	s.mu.Unlock()

	if changed && s.onState != nil {
		s.onState(next)
	}
}

// startRecording opens the microphone and hands the stream to both the
// encoder and the analyzer. On any failure the session keeps its previous
// state and no state notification fires.
func (s *Session) startRecording() (State, bool) {
	stream, err := s.capture.Open()
	if err != nil {
		kind := notify.KindDeviceUnavailable
		if errors.Is(err, capture.ErrPermissionDenied) {
			kind = notify.KindPermissionDenied
		}
		s.notifier.Notify(kind, fmt.Sprintf("cannot start recording: %v", err))
		return "", false
	}

	encoder := encode.New()
	if err := encoder.Start(stream); err != nil {
		s.capture.Close(stream)
		s.notifier.Notify(notify.KindEncodeFailed, fmt.Sprintf("cannot start recording: %v", err))
		return "", false
	}

	visual, err := s.analyzer.Attach(stream, s.cfg.Visual.BarCount, s.emitFrame)
	if err != nil {
		s.capture.Close(stream)
		s.notifier.Notify(notify.KindDeviceUnavailable, fmt.Sprintf("cannot start visualiser: %v", err))
		return "", false
	}

	s.mu.Lock()
	s.stream = stream
	s.encoder = encoder
	s.visual = visual
	s.startedAt = time.Now()
	s.mu.Unlock()

	slog.Info("Recording started")
	return StateRecording, true
}

// stopRecording tears the capture down in order: the encoder finalizes
// first, then the stream is released, then the analyser detaches and resets
// the bars. The new artifact replaces the previous one only once it exists.
func (s *Session) stopRecording(ctx context.Context) (State, bool) {
	s.mu.Lock()
	encoder := s.encoder
	stream := s.stream
	visual := s.visual
	s.encoder = nil
	s.stream = nil
	s.visual = nil
	s.mu.Unlock()

	artifact, err := encoder.Stop(ctx)
	s.capture.Close(stream)
	visual.Detach()

	if err != nil {
		s.notifier.Notify(notify.KindEncodeFailed, fmt.Sprintf("recording could not be finalized: %v", err))
		// The stream is gone either way; settle on the last stable state.
		if s.playback.Artifact() != nil {
			return StateDone, true
		}
		return StateIdle, true
	}

	s.playback.SetArtifact(artifact)
	slog.Info("Recording finished", "bytes", artifact.Size())
	return StateDone, true
}

// TogglePlayback dispatches into the playback state machine. Playback
// transitions never fire the session state-change hook.
func (s *Session) TogglePlayback() {
	if err := s.playback.Toggle(); err != nil {
		if errors.Is(err, playback.ErrNoRecording) {
			s.notifier.Notify(notify.KindNoRecording, "record a message before playing")
			return
		}
		s.notifier.Notify(notify.KindPlaybackFailed, err.Error())
	}
}

func (s *Session) emitFrame(frame spectrum.Frame) {
	if s.onFrame != nil {
		s.onFrame(frame)
	}
}
