package capture

import (
	"sync"
)

// Stream is the single open microphone stream. It fans captured PCM frames
// out to registered consumers; the capture callback must never block, so a
// consumer that falls behind has frames dropped rather than buffered without
// bound.
type Stream struct {
	sampleRate int

	mu     sync.Mutex
	subs   []chan []float32
	closed bool
}

func newStream(sampleRate int) *Stream {
	return &Stream{sampleRate: sampleRate}
}

func (st *Stream) SampleRate() int {
	return st.sampleRate
}

// Subscribe registers a consumer channel with the given buffer depth.
// Subscribing to a closed stream returns an already-closed channel.
func (st *Stream) Subscribe(depth int) <-chan []float32 {
	st.mu.Lock()
	defer st.mu.Unlock()

	ch := make(chan []float32, depth)
	if st.closed {
		close(ch)
		return ch
	}
	st.subs = append(st.subs, ch)
	return ch
}

// push delivers one mono frame to every consumer. Called from the device
// callback; sends are non-blocking.
func (st *Stream) push(frame []float32) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return
	}
	for _, ch := range st.subs {
		select {
		case ch <- frame:
		default:
			// consumer lagging, drop the frame for it
		}
	}
}

// close marks the stream closed and closes all consumer channels.
// Safe to call more than once.
func (st *Stream) close() {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return
	}
	st.closed = true
	for _, ch := range st.subs {
		close(ch)
	}
	st.subs = nil
}

// Closed reports whether the stream has been released.
func (st *Stream) Closed() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.closed
}
