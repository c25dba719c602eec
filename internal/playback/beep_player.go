package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"

	"github.com/voicenotehq/voicenote/internal/encode"
)

// BeepPlayer renders artifacts through the system speaker.
type BeepPlayer struct {
	mu          sync.Mutex
	initialized bool
	sampleRate  beep.SampleRate
}

func NewBeepPlayer() *BeepPlayer {
	return &BeepPlayer{}
}

// Play decodes the WAV artifact and streams it to the speaker. The returned
// handle pauses, resumes, and cuts playback short; onDone fires from the
// speaker goroutine when the clip runs out. The speaker goroutine holds the
// speaker mutex while streaming, so the end-of-clip callback closes the
// streamer directly and must never go through speaker.Lock.
func (p *BeepPlayer) Play(artifact *encode.Artifact, onDone func()) (Handle, error) {
	streamer, format, err := wav.Decode(artifact.Reader())
	if err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}

	if err := p.ensureSpeaker(format.SampleRate); err != nil {
		streamer.Close()
		return nil, err
	}

	end := beep.Callback(func() {
		streamer.Close()
		onDone()
	})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(streamer, end)}
	speaker.Play(ctrl)

	return &beepHandle{ctrl: ctrl, streamer: streamer}, nil
}

// ensureSpeaker initializes the speaker once per process, resampling later
// clips if their rate differs from the first.
func (p *BeepPlayer) ensureSpeaker(rate beep.SampleRate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized && p.sampleRate == rate {
		return nil
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return fmt.Errorf("failed to init speaker: %w", err)
	}
	p.initialized = true
	p.sampleRate = rate
	return nil
}

type beepHandle struct {
	ctrl     *beep.Ctrl
	streamer beep.StreamSeekCloser
}

func (h *beepHandle) Pause() {
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
}

func (h *beepHandle) Resume() {
	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()
}

// Stop cuts playback short on artifact replacement. Runs on a controller
// goroutine, never inside the speaker callback, so taking the speaker lock
// here is safe.
func (h *beepHandle) Stop() {
	speaker.Lock()
	h.ctrl.Streamer = nil
	speaker.Unlock()
	h.streamer.Close()
}
