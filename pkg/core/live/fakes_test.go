package live

import (
	"context"
	"sync"
	"time"

	"github.com/vango-go/resilios/pkg/core/types"
)

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

// Armed counts timers that were neither stopped nor fired.
func (c *fakeClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// fakeFrames delivers frames only when Tick is called.
type fakeFrames struct {
	mu        sync.Mutex
	next      int
	subs      map[int]func()
	maxActive int
	requested int
}

func newFakeFrames() *fakeFrames {
	return &fakeFrames{subs: make(map[int]func())}
}

func (f *fakeFrames) RequestFrames(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := f.next
	f.subs[id] = fn
	f.requested++
	if len(f.subs) > f.maxActive {
		f.maxActive = len(f.subs)
	}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeFrames) Tick() {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeFrames) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type fakeSurface struct {
	mu     sync.Mutex
	clears int
	draws  [][]Bar
}

func (s *fakeSurface) Size() (float64, float64) { return 200, 200 }

func (s *fakeSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

func (s *fakeSurface) Draw(bars []Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draws = append(s.draws, append([]Bar(nil), bars...))
}

func (s *fakeSurface) Draws() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.draws)
}

type fakeStream struct {
	mu     sync.Mutex
	levels []uint8
	closed int
}

func (s *fakeStream) Levels(dst []uint8) []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(dst, s.levels...)
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeStream) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeMedia struct {
	mu      sync.Mutex
	err     error
	partial bool
	streams []*fakeStream
}

func (m *fakeMedia) Acquire(ctx context.Context) (MediaStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &fakeStream{levels: []uint8{255, 128, 0, 255, 64, 200, 10, 0, 0, 0}}
	if m.err != nil {
		if m.partial {
			m.streams = append(m.streams, s)
			return s, m.err
		}
		return nil, m.err
	}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *fakeMedia) Acquired() []*fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*fakeStream(nil), m.streams...)
}

type fakeUpseller struct {
	mu    sync.Mutex
	calls []types.User
	err   error
}

func (u *fakeUpseller) OfferUpgrade(ctx context.Context, user types.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, user)
	return u.err
}

func (u *fakeUpseller) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

type fixedRand int

func (r fixedRand) IntN(n int) int { return int(r) % n }

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) Transcripts() []string {
	var out []string
	for _, e := range r.Events() {
		if te, ok := e.(*TranscriptEvent); ok {
			out = append(out, te.Text)
		}
	}
	return out
}

func (r *recorder) Transitions() [][2]SessionState {
	var out [][2]SessionState
	for _, e := range r.Events() {
		if se, ok := e.(*StateChangedEvent); ok {
			out = append(out, [2]SessionState{se.From, se.To})
		}
	}
	return out
}
