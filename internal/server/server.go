package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"log/slog"

	"github.com/voicenotehq/voicenote/internal/config"
	"github.com/voicenotehq/voicenote/internal/notify"
	"github.com/voicenotehq/voicenote/internal/session"
	"github.com/voicenotehq/voicenote/internal/spectrum"
)

// Server exposes the voice-message session to a browser UI. The session
// stays the single owner of all audio state; the server only forwards
// toggles and streams events out.
type Server struct {
	cfg     *config.Config
	session *session.Session
	port    string

	mu          sync.Mutex
	subscribers map[chan []byte]struct{}
}

// StatusResponse is the JSON payload for the status endpoint.
type StatusResponse struct {
	Status  string       `json:"status"`
	Session session.Info `json:"session"`
}

// GenericResponse is the JSON payload for toggle endpoints.
type GenericResponse struct {
	Success bool         `json:"success"`
	Session session.Info `json:"session"`
	Error   string       `json:"error,omitempty"`
}

// Event is one server-sent event pushed to connected browsers.
type Event struct {
	Type    string         `json:"type"` // "state", "frame", "notice"
	State   session.State  `json:"state,omitempty"`
	Frame   spectrum.Frame `json:"frame,omitempty"`
	Kind    notify.Kind    `json:"kind,omitempty"`
	Message string         `json:"message,omitempty"`
}

// New creates the web server and its session. The options hook in fakes for
// tests; the server installs its own event forwarding on top of them.
func New(cfg *config.Config, opts session.Options) *Server {
	s := &Server{
		cfg:         cfg,
		port:        cfg.Server.Port,
		subscribers: make(map[chan []byte]struct{}),
	}

	base := opts.Notifier
	if base == nil {
		base = notify.NewLog()
	}
	opts.Notifier = notify.FuncNotifier(func(kind notify.Kind, message string) {
		base.Notify(kind, message)
		s.broadcast(Event{Type: "notice", Kind: kind, Message: message})
	})
	userState := opts.OnStateChange
	opts.OnStateChange = func(state session.State) {
		if userState != nil {
			userState(state)
		}
		s.broadcast(Event{Type: "state", State: state})
	}
	userFrame := opts.OnFrame
	opts.OnFrame = func(frame spectrum.Frame) {
		if userFrame != nil {
			userFrame(frame)
		}
		s.broadcast(Event{Type: "frame", Frame: frame})
	}

	s.session = session.New(cfg, opts)
	return s
}

// Session returns the server's session for CLI reuse.
func (s *Server) Session() *session.Session {
	return s.session
}

// routes wires the HTTP surface. Split out so tests can mount it on an
// httptest server.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/toggle-record", s.handleToggleRecord)
	mux.HandleFunc("/toggle-play", s.handleTogglePlay)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/api/recording", s.handleRecording)
	return mux
}

// Start starts the web server and blocks until it fails.
func (s *Server) Start() error {
	localIP := getLocalIP()

	slog.Info("Starting VoiceNote web server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	return http.ListenAndServe(":"+s.port, s.routes())
}

// handleIndex serves the browser widget page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	page := strings.ReplaceAll(indexHTML, "__BAR_COUNT__", strconv.Itoa(s.cfg.Visual.BarCount))
	w.Write([]byte(page))
}

// handleStatus returns the current session snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendMethodNotAllowed(w)
		return
	}

	info := s.session.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Status:  string(info.State),
		Session: info,
	})
}

// handleToggleRecord starts or stops a recording. Failures surface as
// notices on the event stream, so the HTTP response is always a snapshot.
func (s *Server) handleToggleRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendMethodNotAllowed(w)
		return
	}

	slog.Debug("Toggle record request")
	// Teardown must outlive the request: a client that disconnects right
	// after the stop toggle must not cancel encoder finalization.
	s.session.ToggleRecording(context.WithoutCancel(r.Context()))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GenericResponse{
		Success: true,
		Session: s.session.Snapshot(),
	})
}

// handleTogglePlay drives the playback state machine.
func (s *Server) handleTogglePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendMethodNotAllowed(w)
		return
	}

	slog.Debug("Toggle play request")
	s.session.TogglePlayback()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GenericResponse{
		Success: true,
		Session: s.session.Snapshot(),
	})
}

// handleRecording streams the current artifact. The clip lives in memory
// only; there is nothing to serve before the first recording completes.
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	artifact := s.session.Artifact()
	if artifact == nil || artifact.Empty() {
		http.Error(w, "No recording available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", artifact.MIME())
	w.Header().Set("Content-Length", strconv.Itoa(artifact.Size()))
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodHead {
		return
	}
	w.Write(artifact.Bytes())
}

// handleEvents is the server-sent event stream: session state changes,
// visualiser frames, and user notices, one JSON object per event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := s.subscribe()
	defer s.unsubscribe(events)

	// Initial state so a reconnecting browser repaints immediately.
	if payload, err := json.Marshal(Event{Type: "state", State: s.session.State()}); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", payload)
	}
	flusher.Flush()

	slog.Debug("Event stream client connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Event stream client disconnected", "remote", r.RemoteAddr)
			return
		case payload := <-events:
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *Server) subscribe() chan []byte {
	ch := make(chan []byte, 32)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan []byte) {
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
}

// broadcast fans an event out to every connected client. Sends never block:
// a browser that stops reading just misses frames.
func (s *Server) broadcast(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to encode event", "type", ev.Type, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (s *Server) sendMethodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   "Method not allowed",
	})
}

// getLocalIP returns the local IP address for network access.
func getLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
