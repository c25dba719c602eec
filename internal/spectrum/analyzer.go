package spectrum

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/voicenotehq/voicenote/internal/config"
)

// Source is the live stream the analyzer reads from. Satisfied by
// *capture.Stream.
type Source interface {
	Subscribe(depth int) <-chan []float32
}

// Frame is one visualiser snapshot: bar heights in pixels, ordered left to
// right. Ephemeral, recomputed every tick.
type Frame []float64

// Analyzer derives periodic frequency-magnitude snapshots from a live
// capture stream and drives the visualiser render loop.
type Analyzer struct {
	bins         int
	minHeight    float64
	maxHeight    float64
	frameRate    int
	newScheduler func() Scheduler
}

func New(cfg *config.Config) *Analyzer {
	a := &Analyzer{
		bins:      cfg.Visual.Bins,
		minHeight: cfg.Visual.MinHeight,
		maxHeight: cfg.Visual.MaxHeight,
		frameRate: cfg.Visual.FrameRate,
	}
	a.newScheduler = func() Scheduler { return newTickerScheduler(a.frameRate) }
	return a
}

// SetSchedulerFactory replaces the render-loop scheduler. Tests drive ticks
// manually through this hook.
func (a *Analyzer) SetSchedulerFactory(factory func() Scheduler) {
	a.newScheduler = factory
}

// Handle is one attachment of the analyzer to a stream. It samples the
// stream at frame rate until detached.
type Handle struct {
	analyzer *Analyzer
	barCount int
	onFrame  func(Frame)
	sched    Scheduler

	quit         chan struct{}
	consumerDone chan struct{}

	mu       sync.Mutex
	window   []float64 // ring buffer of recent samples
	pos      int
	mags     []float64 // per-bin magnitudes, 0..255
	detached bool
}

// Attach subscribes to the stream and starts the render loop. Each tick
// calls onFrame with a fresh bar-height frame until Detach.
func (a *Analyzer) Attach(src Source, barCount int, onFrame func(Frame)) (*Handle, error) {
	if barCount < 1 || barCount > a.bins {
		return nil, fmt.Errorf("bar count must be between 1 and %d, got %d", a.bins, barCount)
	}

	h := &Handle{
		analyzer:     a,
		barCount:     barCount,
		onFrame:      onFrame,
		quit:         make(chan struct{}),
		consumerDone: make(chan struct{}),
		window:       make([]float64, 2*a.bins),
		mags:         make([]float64, a.bins),
	}

	frames := src.Subscribe(8)
	go h.consume(frames)

	h.sched = a.newScheduler()
	h.sched.Start(func() {
		h.onFrame(h.Sample())
	})

	slog.Debug("Spectrum analyzer attached", "bars", barCount, "bins", a.bins)
	return h, nil
}

// consume folds incoming PCM frames into the sample ring.
func (h *Handle) consume(frames <-chan []float32) {
	defer close(h.consumerDone)
	for {
		select {
		case <-h.quit:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			h.ingest(frame)
		}
	}
}

func (h *Handle) ingest(frame []float32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range frame {
		h.window[h.pos] = float64(s)
		h.pos = (h.pos + 1) % len(h.window)
	}
}

// Sample refreshes the magnitude buffer from the current window and returns
// the bar heights for this tick.
func (h *Handle) Sample() Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshMagnitudes()
	return barHeights(h.mags, h.barCount, h.analyzer.minHeight, h.analyzer.maxHeight)
}

// refreshMagnitudes recomputes the per-bin magnitudes from the sample
// window. A cheap DFT over a short window: visually reactive, not spectrally
// precise. Caller holds h.mu.
func (h *Handle) refreshMagnitudes() {
	n := len(h.window)
	for k := range h.mags {
		var re, im float64
		freq := 2 * math.Pi * float64(k+1) / float64(n)
		for i, s := range h.window {
			angle := freq * float64(i)
			re += s * math.Cos(angle)
			im += s * math.Sin(angle)
		}
		// normalized magnitude scaled into the 0..255 byte range
		mag := 2 * math.Sqrt(re*re+im*im) / float64(n)
		v := mag * 1024
		if v > 255 {
			v = 255
		}
		h.mags[k] = v
	}
}

// barHeights maps bin magnitudes onto bar pixel heights. Bar i reads bin
// floor(i*binCount/barCount), nearest-neighbor, no averaging.
func barHeights(mags []float64, barCount int, minHeight, maxHeight float64) Frame {
	out := make(Frame, barCount)
	for i := range out {
		bin := i * len(mags) / barCount
		m := mags[bin]
		if m < 0 {
			m = 0
		} else if m > 255 {
			m = 255
		}
		out[i] = minHeight + (m/255)*(maxHeight-minHeight)
	}
	return out
}

// Detach stops the render loop and releases analysis resources. Cancellation
// is synchronous: no tick callback runs after Detach returns. A final frame
// with every bar at the minimum height is emitted so the visualiser does not
// display stale data.
func (h *Handle) Detach() {
	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return
	}
	h.detached = true
	h.mu.Unlock()

	h.sched.Stop()
	close(h.quit)
	<-h.consumerDone

	reset := make(Frame, h.barCount)
	for i := range reset {
		reset[i] = h.analyzer.minHeight
	}
	h.onFrame(reset)

	slog.Debug("Spectrum analyzer detached")
}
