package live

import (
	"sync"
	"time"
)

type timerKind int

const (
	timerConnect timerKind = iota
	timerSpeaking
	timerSticker
)

func (k timerKind) String() string {
	switch k {
	case timerConnect:
		return "connect"
	case timerSpeaking:
		return "speaking"
	case timerSticker:
		return "sticker"
	default:
		return "unknown"
	}
}

type timerHandle struct {
	id    uint64
	timer Timer
}

// timerSet tracks the outstanding timers of a session, at most one per kind.
type timerSet struct {
	clock Clock

	mu      sync.Mutex
	seq     uint64
	handles map[timerKind]timerHandle
}

func newTimerSet(clock Clock) *timerSet {
	return &timerSet{
		clock:   clock,
		handles: make(map[timerKind]timerHandle),
	}
}

// schedule arms fn after d, replacing any pending timer of
// the same kind. fn only runs if its handle is still the current one for
// that kind when the timer fires.
func (s *timerSet) schedule(kind timerKind, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.handles[kind]; ok {
		prev.timer.Stop()
		delete(s.handles, kind)
	}

	s.seq++
	id := s.seq
	t := s.clock.AfterFunc(d, func() {
		if !s.fired(kind, id) {
			return
		}
		fn()
	})
	s.handles[kind] = timerHandle{id: id, timer: t}
}

// fired removes the handle if it is still current and reports whether it was.
func (s *timerSet) fired(kind timerKind, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[kind]
	if !ok || h.id != id {
		return false
	}
	delete(s.handles, kind)
	return true
}

func (s *timerSet) cancel(kind timerKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[kind]; ok {
		h.timer.Stop()
		delete(s.handles, kind)
	}
}

// cancelAll stops every outstanding timer, including ones not yet fired.
func (s *timerSet) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, h := range s.handles {
		h.timer.Stop()
		delete(s.handles, kind)
	}
}

func (s *timerSet) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
