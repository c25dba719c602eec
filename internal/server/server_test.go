package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voicenotehq/voicenote/internal/capture"
	"github.com/voicenotehq/voicenote/internal/config"
	"github.com/voicenotehq/voicenote/internal/encode"
	"github.com/voicenotehq/voicenote/internal/playback"
	"github.com/voicenotehq/voicenote/internal/session"
	"github.com/voicenotehq/voicenote/internal/spectrum"
)

type fakeBackend struct {
	mu   sync.Mutex
	sink capture.FrameSink
}

func (b *fakeBackend) Start(sampleRate, channels, frameSize int, sink capture.FrameSink) (capture.DeviceHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
	return &fakeDevice{}, nil
}

func (b *fakeBackend) Type() capture.BackendType { return "fake" }

func (b *fakeBackend) feed(frame []float32) {
	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()
	if sink != nil {
		sink(frame)
	}
}

type fakeDevice struct{}

func (d *fakeDevice) Stop() error { return nil }

type fakePlayer struct{}

func (p *fakePlayer) Play(artifact *encode.Artifact, onDone func()) (playback.Handle, error) {
	return &fakeHandle{}, nil
}

type fakeHandle struct{}

func (h *fakeHandle) Pause()  {}
func (h *fakeHandle) Resume() {}
func (h *fakeHandle) Stop()   {}

type noopScheduler struct{}

func (s *noopScheduler) Start(tick func()) {}
func (s *noopScheduler) Stop()             {}

func newTestServer(t *testing.T) (*Server, *fakeBackend, *httptest.Server) {
	t.Helper()
	backend := &fakeBackend{}
	srv := New(config.Default(), session.Options{
		Backend:   backend,
		Player:    &fakePlayer{},
		Scheduler: func() spectrum.Scheduler { return &noopScheduler{} },
	})
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, backend, ts
}

func TestStatus_InitialState(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	defer resp.Body.Close()

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.Status != "IDLE" {
		t.Errorf("Expected IDLE status, got %s", status.Status)
	}
	if status.Session.ArtifactBytes != 0 {
		t.Errorf("Expected no artifact bytes, got %d", status.Session.ArtifactBytes)
	}
}

func TestToggleRecord_MethodGuard(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/toggle-record")
	if err != nil {
		t.Fatalf("Failed to call toggle-record: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET toggle-record, got %d", resp.StatusCode)
	}
}

func TestToggleRecord_Cycle(t *testing.T) {
	_, backend, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/toggle-record", "", nil)
	if err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	var started GenericResponse
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	resp.Body.Close()
	if started.Session.State != session.StateRecording {
		t.Fatalf("Expected RECORDING, got %s", started.Session.State)
	}

	backend.feed(make([]float32, 1024))

	resp, err = http.Post(ts.URL+"/toggle-record", "", nil)
	if err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}
	var stopped GenericResponse
	if err := json.NewDecoder(resp.Body).Decode(&stopped); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	resp.Body.Close()
	if stopped.Session.State != session.StateDone {
		t.Errorf("Expected DONE, got %s", stopped.Session.State)
	}
	if stopped.Session.ArtifactBytes == 0 {
		t.Error("Expected artifact bytes in snapshot after stop")
	}
}

func TestRecording_NotFoundBeforeFirstClip(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/recording")
	if err != nil {
		t.Fatalf("Failed to get recording: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 before first recording, got %d", resp.StatusCode)
	}
}

func TestRecording_StreamsArtifact(t *testing.T) {
	_, backend, ts := newTestServer(t)

	if _, err := http.Post(ts.URL+"/toggle-record", "", nil); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	backend.feed(make([]float32, 2048))
	if _, err := http.Post(ts.URL+"/toggle-record", "", nil); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/recording")
	if err != nil {
		t.Fatalf("Failed to get recording: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != encode.MIMEType {
		t.Errorf("Expected Content-Type %s, got %s", encode.MIMEType, ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read artifact body: %v", err)
	}
	if !bytes.HasPrefix(body, []byte("RIFF")) {
		t.Error("Expected a WAV artifact starting with RIFF")
	}
}

func TestEvents_NoticeDelivered(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/events")
	if err != nil {
		t.Fatalf("Failed to open event stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Expected event-stream content type, got %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	if first.Type != "state" || first.State != session.StateIdle {
		t.Fatalf("Expected initial IDLE state event, got %+v", first)
	}

	// Playback with no clip raises a notice on the stream.
	if _, err := http.Post(ts.URL+"/toggle-play", "", nil); err != nil {
		t.Fatalf("Failed to toggle play: %v", err)
	}

	notice := readEvent(t, reader)
	if notice.Type != "notice" || notice.Kind != "no_recording" {
		t.Errorf("Expected no_recording notice event, got %+v", notice)
	}
}

func readEvent(t *testing.T, reader *bufio.Reader) Event {
	t.Helper()

	type result struct {
		ev  Event
		err error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				ch <- result{err: err}
				return
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev Event
			err = json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev)
			ch <- result{ev: ev, err: err}
			return
		}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("Failed to read event: %v", r.err)
		}
		return r.ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
		return Event{}
	}
}

func TestToggleRecord_StopSurvivesClientDisconnect(t *testing.T) {
	srv, backend, _ := newTestServer(t)
	mux := srv.routes()

	start := httptest.NewRequest(http.MethodPost, "/toggle-record", nil)
	mux.ServeHTTP(httptest.NewRecorder(), start)
	backend.feed(make([]float32, 1024))

	// A client that disconnects right after POSTing stop arrives with an
	// already-canceled request context; finalization must still complete.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stop := httptest.NewRequest(http.MethodPost, "/toggle-record", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, stop)

	var out GenericResponse
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out.Session.State != session.StateDone {
		t.Errorf("Expected DONE despite canceled request, got %s", out.Session.State)
	}
	if out.Session.ArtifactBytes == 0 {
		t.Error("Expected the clip to survive the client disconnect")
	}
}

func TestIndex_BarCountFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Visual.BarCount = 12
	srv := New(cfg, session.Options{
		Backend:   &fakeBackend{},
		Player:    &fakePlayer{},
		Scheduler: func() spectrum.Scheduler { return &noopScheduler{} },
	})
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("Failed to get index: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "BAR_COUNT = 12") {
		t.Error("Expected the configured bar count in the page")
	}
	if strings.Contains(string(body), "__BAR_COUNT__") {
		t.Error("Expected the bar count placeholder to be substituted")
	}
}

func TestNew_ForwardsCallerHooks(t *testing.T) {
	var mu sync.Mutex
	var states []session.State
	var frames int

	srv := New(config.Default(), session.Options{
		Backend:   &fakeBackend{},
		Player:    &fakePlayer{},
		Scheduler: func() spectrum.Scheduler { return &noopScheduler{} },
		OnStateChange: func(state session.State) {
			mu.Lock()
			states = append(states, state)
			mu.Unlock()
		},
		OnFrame: func(frame spectrum.Frame) {
			mu.Lock()
			frames++
			mu.Unlock()
		},
	})

	srv.Session().ToggleRecording(context.Background())
	srv.Session().ToggleRecording(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != session.StateRecording || states[1] != session.StateDone {
		t.Errorf("Expected caller to see RECORDING then DONE, got %v", states)
	}
	if frames == 0 {
		t.Error("Expected caller to receive visualiser frames")
	}
}

func TestIndex_ServesWidget(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("Failed to get index: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "VoiceNote") {
		t.Error("Expected the widget page body")
	}
}
