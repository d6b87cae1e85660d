// Package ratelimit holds per-principal request budgets and live-session
// caps for a single process.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"
)

type Config struct {
	RPS   float64
	Burst int

	MaxConcurrentRequests int
	MaxLiveSessions       int

	// Operational bounds for the in-memory map.
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*principalLimiter
}

type principalLimiter struct {
	mu sync.Mutex

	tokens float64
	last   time.Time

	requests chan struct{}
	live     chan struct{}

	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*principalLimiter),
	}
}

// PrincipalKey hashes a raw identifier (user id or client IP) so it can be
// used as a map key without retaining the raw value.
func PrincipalKey(kind, raw string) string {
	sum := sha256.Sum256([]byte(kind + ":" + raw))
	return kind + "_" + hex.EncodeToString(sum[:12])
}

type Permit struct {
	once    sync.Once
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.once.Do(p.release)
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

var noop = func() {}

// AcquireRequest spends one token and takes a concurrency slot.
func (l *Limiter) AcquireRequest(principal string, now time.Time) Decision {
	pl := l.entry(principal, now)

	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		if ok, retryAfter := pl.take(now, l.cfg.RPS, l.cfg.Burst); !ok {
			return Decision{RetryAfter: retryAfter}
		}
	}
	if l.cfg.MaxConcurrentRequests > 0 {
		return acquireSlot(pl.requests)
	}
	return Decision{Allowed: true, Permit: &Permit{release: noop}}
}

// AcquireLiveSession takes one of the principal's live-session slots.
func (l *Limiter) AcquireLiveSession(principal string, now time.Time) Decision {
	pl := l.entry(principal, now)
	if l.cfg.MaxLiveSessions > 0 {
		return acquireSlot(pl.live)
	}
	return Decision{Allowed: true, Permit: &Permit{release: noop}}
}

func acquireSlot(sem chan struct{}) Decision {
	select {
	case sem <- struct{}{}:
		return Decision{Allowed: true, Permit: &Permit{release: func() { <-sem }}}
	default:
		return Decision{RetryAfter: 1}
	}
}

func (l *Limiter) entry(principal string, now time.Time) *principalLimiter {
	if principal == "" {
		principal = "anonymous"
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	pl, ok := l.m[principal]
	if !ok {
		if len(l.m) >= l.cfg.MaxEntries {
			l.evictLocked(now)
		}
		pl = &principalLimiter{
			requests: make(chan struct{}, max(1, l.cfg.MaxConcurrentRequests)),
			live:     make(chan struct{}, max(1, l.cfg.MaxLiveSessions)),
		}
		l.m[principal] = pl
	}
	pl.lastSeen = now
	return pl
}

// evictLocked drops idle entries; when none are idle it drops one at random
// to keep memory bounded.
func (l *Limiter) evictLocked(now time.Time) {
	for k, v := range l.m {
		if now.Sub(v.lastSeen) > l.cfg.EntryTTL && len(v.requests) == 0 && len(v.live) == 0 {
			delete(l.m, k)
		}
	}
	if len(l.m) < l.cfg.MaxEntries {
		return
	}
	for k := range l.m {
		delete(l.m, k)
		return
	}
}

// Len is the number of tracked principals.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (pl *principalLimiter) take(now time.Time, rps float64, burst int) (bool, int) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	capacity := float64(burst)
	if pl.last.IsZero() {
		pl.tokens = capacity
		pl.last = now
	}
	if elapsed := now.Sub(pl.last).Seconds(); elapsed > 0 {
		pl.tokens = math.Min(capacity, pl.tokens+elapsed*rps)
		pl.last = now
	}

	if pl.tokens >= 1 {
		pl.tokens--
		return true, 0
	}
	retryAfter := int(math.Ceil((1 - pl.tokens) / rps))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
