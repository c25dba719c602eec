package encode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// MIMEType tags every artifact this encoder produces.
const MIMEType = "audio/wav"

// Source is the live stream the encoder drains. Satisfied by
// *capture.Stream.
type Source interface {
	Subscribe(depth int) <-chan []float32
	SampleRate() int
}

// Encoder buffers a live stream and finalizes it into a WAV artifact.
// One encoder serves one recording cycle: Start once, Stop once.
type Encoder struct {
	quit chan struct{}
	done chan struct{}

	mu         sync.Mutex
	sampleRate int
	samples    []float32
	started    bool
	stopped    bool
}

func New() *Encoder {
	return &Encoder{
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins buffering frames from the stream.
func (e *Encoder) Start(src Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("encoder already started")
	}
	e.started = true
	e.sampleRate = src.SampleRate()

	frames := src.Subscribe(64)
	go e.drain(frames)
	return nil
}

func (e *Encoder) drain(frames <-chan []float32) {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			// take whatever is still buffered before finalizing
			for {
				select {
				case frame, ok := <-frames:
					if !ok {
						return
					}
					e.append(frame)
				default:
					return
				}
			}
		case frame, ok := <-frames:
			if !ok {
				return
			}
			e.append(frame)
		}
	}
}

func (e *Encoder) append(frame []float32) {
	e.mu.Lock()
	e.samples = append(e.samples, frame...)
	e.mu.Unlock()
}

// Stop finalizes the capture into an artifact. Resolves exactly once; a
// second call fails. A capture that produced no frames yields an empty
// artifact, which is legitimate at this layer.
func (e *Encoder) Stop(ctx context.Context) (*Artifact, error) {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil, fmt.Errorf("encoder not started")
	}
	if e.stopped {
		e.mu.Unlock()
		return nil, fmt.Errorf("encoder already stopped")
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.quit)
	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("encoder finalization interrupted: %w", ctx.Err())
	}

	e.mu.Lock()
	samples := e.samples
	sampleRate := e.sampleRate
	e.mu.Unlock()

	if len(samples) == 0 {
		slog.Debug("Encoder finalized with no captured audio")
		return &Artifact{mime: MIMEType}, nil
	}

	data, err := encodeWAV(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}

	slog.Debug("Encoder finalized artifact", "samples", len(samples), "bytes", len(data))
	return &Artifact{data: data, mime: MIMEType}, nil
}

// encodeWAV writes mono float32 samples as 16-bit PCM WAV.
func encodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	out := &bufferWriteSeeker{}
	enc := wav.NewEncoder(out, sampleRate, 16, 1, 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}

	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}
	return out.Bytes(), nil
}
