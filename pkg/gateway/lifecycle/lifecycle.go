// Package lifecycle holds process state shared across handlers during
// graceful shutdown.
package lifecycle

import (
	"sync"
	"sync/atomic"
)

type Lifecycle struct {
	draining atomic.Bool

	mu    sync.Mutex
	hooks []func()
	fired bool
}

// OnDrain registers fn to run once when draining begins. A hook added after
// draining started runs immediately.
func (l *Lifecycle) OnDrain(fn func()) {
	if l == nil || fn == nil {
		return
	}
	l.mu.Lock()
	if l.fired {
		l.mu.Unlock()
		fn()
		return
	}
	l.hooks = append(l.hooks, fn)
	l.mu.Unlock()
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
	if !draining {
		return
	}

	l.mu.Lock()
	if l.fired {
		l.mu.Unlock()
		return
	}
	l.fired = true
	hooks := l.hooks
	l.hooks = nil
	l.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
