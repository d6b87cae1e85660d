package live

import (
	"sync"
	"time"
)

// FrameScheduler delivers per-frame callbacks until canceled.
//
// cancel must be idempotent, and once it returns fn must not run again.
// fn must not call cancel.
type FrameScheduler interface {
	RequestFrames(fn func()) (cancel func())
}

type tickerScheduler struct {
	interval time.Duration
}

// NewTickerScheduler returns a FrameScheduler that ticks fps times a second.
func NewTickerScheduler(fps int) FrameScheduler {
	if fps <= 0 {
		fps = DefaultVisualizerConfig().FPS
	}
	return tickerScheduler{interval: time.Second / time.Duration(fps)}
}

func (s tickerScheduler) RequestFrames(fn func()) func() {
	ticker := time.NewTicker(s.interval)
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// A tick may race a stop; prefer the stop.
				select {
				case <-stop:
					return
				default:
				}
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stop) })
		<-done
	}
}
