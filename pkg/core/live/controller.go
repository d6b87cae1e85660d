package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/vango-go/resilios/pkg/core/types"
)

// ErrDisposed is returned by Toggle after Dispose.
var ErrDisposed = errors.New("live: controller disposed")

// Outcome describes what a Toggle did.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeStarted
	OutcomeStopped
	OutcomeUpsell
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeStopped:
		return "stopped"
	case OutcomeUpsell:
		return "upsell"
	default:
		return "none"
	}
}

// Rand picks stickers. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Options wires a Controller to its collaborators. Zero values get
// production defaults except Surface, which may be nil for headless use.
type Options struct {
	Config   Config
	User     types.User
	Clock    Clock
	Frames   FrameScheduler
	Surface  Surface
	Media    MediaSource
	Gate     Gate
	Upseller Upseller
	Rand     Rand
	Observer Observer
	Logger   *slog.Logger
}

// Controller owns one live-avatar session lifecycle.
type Controller struct {
	cfg      Config
	timers   *timerSet
	vis      *Visualizer
	media    MediaSource
	gate     Gate
	upseller Upseller
	rand     Rand
	observer Observer
	logger   *slog.Logger

	mu         sync.Mutex
	user       types.User
	state      SessionState
	transcript string
	sticker    *types.Sticker
	stream     MediaStream
	gen        uint64
	disposed   bool
}

// NewController validates opts and returns an idle controller.
func NewController(opts Options) (*Controller, error) {
	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("live config: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	frames := opts.Frames
	if frames == nil {
		frames = NewTickerScheduler(cfg.Visualizer.FPS)
	}
	media := opts.Media
	if media == nil {
		media = SilentMedia(64)
	}
	gate := opts.Gate
	if gate == nil {
		gate = PremiumGate{}
	}
	r := opts.Rand
	if r == nil {
		r = globalRand{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		cfg:      cfg,
		timers:   newTimerSet(clock),
		vis:      NewVisualizer(cfg.Visualizer, frames, opts.Surface),
		media:    media,
		gate:     gate,
		upseller: opts.Upseller,
		rand:     r,
		observer: opts.Observer,
		logger:   logger,
		user:     opts.User,
	}, nil
}

// SetUser replaces the user consulted by the gate on the next start.
func (c *Controller) SetUser(user types.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = user
}

// Toggle stops a running session, or starts one if the gate allows it.
// A denied start invokes the Upseller once and leaves the state unchanged.
func (c *Controller) Toggle(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return OutcomeNone, ErrDisposed
	}

	if c.state != StateIdle {
		c.endLocked("stopped")
		c.mu.Unlock()
		return OutcomeStopped, nil
	}

	user := c.user
	if !c.gate.CanStart(user) {
		c.mu.Unlock()
		c.logger.Info("live session denied", "user_id", user.ID)
		if c.upseller != nil {
			if err := c.upseller.OfferUpgrade(ctx, user); err != nil {
				return OutcomeUpsell, fmt.Errorf("offer upgrade: %w", err)
			}
		}
		return OutcomeUpsell, nil
	}

	err := c.startLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return OutcomeNone, err
	}
	return OutcomeStarted, nil
}

// Stop ends a running session. Unlike Toggle it never starts one: an Idle
// controller reports OutcomeNone.
func (c *Controller) Stop() (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return OutcomeNone, ErrDisposed
	}
	if c.state == StateIdle {
		return OutcomeNone, nil
	}
	c.endLocked("stopped")
	return OutcomeStopped, nil
}

// Dispose tears down everything the controller holds. It is idempotent
// and safe in any state.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.disposed = true
	if c.state != StateIdle {
		c.endLocked("disposed")
		return
	}
	c.releaseLocked()
}

func (c *Controller) startLocked(ctx context.Context) error {
	stream, err := c.media.Acquire(ctx)
	if err != nil {
		if stream != nil {
			if cerr := stream.Close(); cerr != nil {
				c.logger.Warn("release partial media stream", "error", cerr)
			}
		}
		c.logger.Warn("live session media unavailable", "user_id", c.user.ID, "error", err)
		merr := fmt.Errorf("%w: %w", ErrMediaUnavailable, err)
		c.emit(&SessionErrorEvent{Err: merr})
		return merr
	}

	c.gen++
	gen := c.gen
	c.stream = stream

	c.setTranscript(c.cfg.ConnectingText)
	c.setState(StateConnecting)
	c.timers.schedule(timerConnect, c.cfg.ConnectDelay, func() { c.onConnected(gen) })

	c.logger.Debug("live session connecting", "user_id", c.user.ID, "generation", gen)
	return nil
}

func (c *Controller) onConnected(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != StateConnecting {
		return
	}

	c.setTranscript(c.cfg.GreetingText)
	c.setState(StateSpeaking)

	catalog := types.Stickers()
	s := catalog[c.rand.IntN(len(catalog))]
	c.setSticker(&s)

	c.timers.schedule(timerSticker, c.cfg.StickerDuration, func() { c.onStickerExpired(gen) })
	c.timers.schedule(timerSpeaking, c.cfg.SpeakingDuration, func() { c.onSpeakingDone(gen) })

	if c.stream != nil {
		c.vis.Start(c.stream)
	}
}

func (c *Controller) onStickerExpired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.setSticker(nil)
}

func (c *Controller) onSpeakingDone(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != StateSpeaking {
		return
	}
	c.endLocked("completed")
}

// endLocked returns a running session to Idle.
func (c *Controller) endLocked(reason string) {
	c.releaseLocked()
	c.setTranscript("")
	c.setState(StateIdle)
	c.logger.Debug("live session ended", "user_id", c.user.ID, "reason", reason)
}

// releaseLocked invalidates pending callbacks and frees every session resource.
func (c *Controller) releaseLocked() {
	c.gen++
	c.timers.cancelAll()
	c.vis.Stop()
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			c.logger.Warn("close media stream", "error", err)
		}
		c.stream = nil
	}
	c.setSticker(nil)
}

func (c *Controller) setState(to SessionState) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	c.emit(&StateChangedEvent{From: from, To: to})
}

func (c *Controller) setTranscript(text string) {
	if c.transcript == text {
		return
	}
	c.transcript = text
	c.emit(&TranscriptEvent{Text: text})
}

func (c *Controller) setSticker(s *types.Sticker) {
	if c.sticker == nil && s == nil {
		return
	}
	c.sticker = s
	c.emit(&StickerEvent{Sticker: s})
}

func (c *Controller) emit(e Event) {
	if c.observer != nil {
		c.observer.OnEvent(e)
	}
}

// State returns the current session state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns the current transcript text.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// Sticker returns the active sticker, if any.
func (c *Controller) Sticker() (types.Sticker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sticker == nil {
		return types.Sticker{}, false
	}
	return *c.sticker, true
}

// PendingTimers returns the number of outstanding timers.
func (c *Controller) PendingTimers() int {
	return c.timers.pending()
}

// Subscriptions returns the number of outstanding visualizer subscriptions.
func (c *Controller) Subscriptions() int {
	return c.vis.Subscriptions()
}

// Disposed reports whether Dispose has been called.
func (c *Controller) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}
