package spectrum

import (
	"time"
)

// Scheduler invokes a callback once per display frame until stopped.
// Stop is synchronous: after it returns no further callback runs.
type Scheduler interface {
	Start(tick func())
	Stop()
}

// tickerScheduler drives the render loop from a fixed-rate ticker. The
// browser widget ties this to display refresh; a ticker at the configured
// frame rate is the process-local equivalent.
type tickerScheduler struct {
	interval time.Duration
	quit     chan struct{}
	done     chan struct{}
}

func newTickerScheduler(frameRate int) *tickerScheduler {
	return &tickerScheduler{interval: time.Second / time.Duration(frameRate)}
}

func (s *tickerScheduler) Start(tick func()) {
	s.quit = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.quit:
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
}

func (s *tickerScheduler) Stop() {
	if s.quit == nil {
		return
	}
	close(s.quit)
	<-s.done
	s.quit = nil
}
