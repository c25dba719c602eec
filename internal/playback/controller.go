package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voicenotehq/voicenote/internal/encode"
)

// State is the playback lifecycle state.
type State string

const (
	StateStopped State = "STOPPED"
	StatePlaying State = "PLAYING"
	StatePaused  State = "PAUSED"
)

// ErrNoRecording is returned when playback is requested without a usable
// artifact. User-notified, no state change.
var ErrNoRecording = errors.New("no recording to play")

// Handle is one live playback of an artifact. At most one exists at a time.
type Handle interface {
	Pause()
	Resume()
	// Stop cuts playback short and releases the transient resource. Called
	// only when the artifact is replaced mid-playback, never on natural end.
	Stop()
}

// Player is the platform playback primitive: it streams an artifact and
// fires onDone exactly once when the clip ends naturally. The player
// releases its own transient resources before invoking onDone; onDone may
// run on the player's audio goroutine with player-internal locks held, so
// the controller must not call back into the handle from it. onDone must
// not be invoked from within Play itself.
type Player interface {
	Play(artifact *encode.Artifact, onDone func()) (Handle, error)
}

// Controller manages the single-clip play/pause/resume/stop lifecycle over
// one external toggle action.
type Controller struct {
	player Player

	mu       sync.Mutex
	state    State
	handle   Handle
	artifact *encode.Artifact
}

func NewController(player Player) *Controller {
	return &Controller{
		player: player,
		state:  StateStopped,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Artifact() *encode.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifact
}

// SetArtifact replaces the current clip. Any handle for the previous
// artifact is torn down first; playback returns to stopped.
func (c *Controller) SetArtifact(artifact *encode.Artifact) {
	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	c.artifact = artifact
	c.state = StateStopped
	c.mu.Unlock()

	if handle != nil {
		handle.Stop()
	}
}

// Toggle advances the playback state machine:
// stopped -> playing (only with a non-empty artifact), playing -> paused,
// paused -> playing.
func (c *Controller) Toggle() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateStopped:
		if c.artifact == nil || c.artifact.Empty() {
			return ErrNoRecording
		}
		handle, err := c.player.Play(c.artifact, c.playbackEnded)
		if err != nil {
			return fmt.Errorf("failed to start playback: %w", err)
		}
		c.handle = handle
		c.state = StatePlaying
		slog.Debug("Playback started", "bytes", c.artifact.Size())

	case StatePlaying:
		c.handle.Pause()
		c.state = StatePaused
		slog.Debug("Playback paused")

	case StatePaused:
		c.handle.Resume()
		c.state = StatePlaying
		slog.Debug("Playback resumed")
	}

	return nil
}

// playbackEnded is invoked by the player when the clip is exhausted.
// Automatic transition back to stopped. The player has already released its
// resources by this point; calling Handle.Stop here would re-enter the
// player's audio lock from its own callback.
func (c *Controller) playbackEnded() {
	c.mu.Lock()
	c.handle = nil
	c.state = StateStopped
	c.mu.Unlock()

	slog.Debug("Playback finished")
}
