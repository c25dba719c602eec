package notify

import (
	"log/slog"
	"sync"
)

// Kind classifies a user-visible failure notice.
type Kind string

const (
	KindPermissionDenied  Kind = "permission_denied"
	KindDeviceUnavailable Kind = "device_unavailable"
	KindNoRecording       Kind = "no_recording"
	KindBusy              Kind = "busy"
	KindEncodeFailed      Kind = "encode_failed"
	KindPlaybackFailed    Kind = "playback_failed"
)

// Notifier delivers failure notices to the user-facing layer.
// Implementations must not block the caller.
type Notifier interface {
	Notify(kind Kind, message string)
}

// LogNotifier reports notices through slog. It is the default sink when
// no UI layer registers its own notifier.
type LogNotifier struct{}

func NewLog() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(kind Kind, message string) {
	slog.Warn("User notice", "kind", string(kind), "message", message)
}

// FuncNotifier adapts a plain function to the Notifier interface, used by
// the web server to forward notices to connected browsers.
type FuncNotifier func(kind Kind, message string)

func (f FuncNotifier) Notify(kind Kind, message string) {
	f(kind, message)
}

// Recorder collects notices for inspection. Test helper.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notice is a single recorded notification.
type Notice struct {
	Kind    Kind
	Message string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(kind Kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Kind: kind, Message: message})
}

// Notices returns a copy of all recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}
