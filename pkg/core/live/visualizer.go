package live

import (
	"math"
	"sync"
)

// SampleSource yields the current amplitude distribution.
type SampleSource interface {
	// Levels appends the current samples (0..255 each) to dst.
	Levels(dst []uint8) []uint8
}

// Bar is one radial segment of the visualizer.
type Bar struct {
	Index  int     `json:"i"`
	Angle  float64 `json:"angle"`
	Length float64 `json:"length"`
	Alpha  float64 `json:"alpha"`
	X0     float64 `json:"x0"`
	Y0     float64 `json:"y0"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
}

// Surface is where bars are painted.
type Surface interface {
	Size() (width, height float64)
	Clear()
	Draw(bars []Bar)
}

// FrameReplacer is a Surface that repaints whole frames at once. The
// visualizer calls Replace instead of Clear followed by Draw.
type FrameReplacer interface {
	Replace(bars []Bar)
}

// ComputeBars maps samples onto radial bars around the center of a
// width x height surface.
func ComputeBars(cfg VisualizerConfig, samples []uint8, width, height float64) []Bar {
	// span is fractional: 64 samples span 44.8 bar slots, so 45 bars are
	// considered and spaced 2π/44.8 apart.
	span := float64(len(samples)) * cfg.ArcFraction
	if span <= 0 {
		return nil
	}
	count := min(int(math.Ceil(span)), len(samples))

	cx, cy := width/2, height/2
	radius := math.Min(cx, cy) * cfg.RadiusFactor
	step := 2 * math.Pi / span

	bars := make([]Bar, 0, count)
	for i := 0; i < count; i++ {
		norm := float64(samples[i]) / 255
		length := math.Pow(norm, cfg.Exponent) * cfg.MaxBarLength
		if length < cfg.MinBarLength {
			continue
		}
		angle := float64(i)*step - math.Pi/2
		cos, sin := math.Cos(angle), math.Sin(angle)
		bars = append(bars, Bar{
			Index:  i,
			Angle:  angle,
			Length: length,
			Alpha:  math.Max(cfg.MinAlpha, norm),
			X0:     cx + cos*radius,
			Y0:     cy + sin*radius,
			X1:     cx + cos*(radius+length),
			Y1:     cy + sin*(radius+length),
		})
	}
	return bars
}

// Visualizer runs the per-frame render cycle.
type Visualizer struct {
	cfg     VisualizerConfig
	frames  FrameScheduler
	surface Surface

	// ctl serializes Start and Stop. It is never taken by frame callbacks,
	// so a scheduler cancel that waits for its loop cannot deadlock.
	ctl    sync.Mutex
	cancel func()

	mu  sync.Mutex
	gen uint64
	buf []uint8
	// subs counts outstanding frame subscriptions.
	subs int
}

// NewVisualizer creates a stopped visualizer.
func NewVisualizer(cfg VisualizerConfig, frames FrameScheduler, surface Surface) *Visualizer {
	return &Visualizer{cfg: cfg, frames: frames, surface: surface}
}

// Start begins rendering src. A running cycle is canceled first.
func (v *Visualizer) Start(src SampleSource) {
	v.ctl.Lock()
	defer v.ctl.Unlock()

	v.cancelLocked()

	v.mu.Lock()
	v.gen++
	gen := v.gen
	v.subs++
	v.mu.Unlock()

	v.cancel = v.frames.RequestFrames(func() { v.frame(gen, src) })
}

// Stop cancels the frame cycle and clears the surface. Safe when stopped.
func (v *Visualizer) Stop() {
	v.ctl.Lock()
	defer v.ctl.Unlock()

	v.cancelLocked()
	if v.surface != nil {
		v.surface.Clear()
	}
}

func (v *Visualizer) cancelLocked() {
	v.mu.Lock()
	v.gen++
	v.mu.Unlock()

	if v.cancel == nil {
		return
	}
	v.cancel()
	v.cancel = nil

	v.mu.Lock()
	v.subs--
	v.mu.Unlock()
}

func (v *Visualizer) frame(gen uint64, src SampleSource) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen || v.surface == nil {
		return
	}

	v.buf = src.Levels(v.buf[:0])
	w, h := v.surface.Size()
	bars := ComputeBars(v.cfg, v.buf, w, h)
	if r, ok := v.surface.(FrameReplacer); ok {
		r.Replace(bars)
		return
	}
	v.surface.Clear()
	v.surface.Draw(bars)
}

// Running reports whether a frame subscription is outstanding.
func (v *Visualizer) Running() bool {
	return v.Subscriptions() > 0
}

// Subscriptions returns the number of outstanding frame subscriptions.
func (v *Visualizer) Subscriptions() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.subs
}
