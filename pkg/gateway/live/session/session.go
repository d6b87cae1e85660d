// Package session binds one live.Controller to a WebSocket connection.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/resilios/pkg/core/live"
	"github.com/vango-go/resilios/pkg/core/types"
	"github.com/vango-go/resilios/pkg/gateway/live/protocol"
)

const defaultBins = 64

var (
	errBackpressure = errors.New("live outbound backpressure")
	errClosed       = errors.New("live session closed")
	errMicDenied    = errors.New("microphone permission denied")
)

type Config struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	// ReadTimeout bounds silence from the client; pongs extend it. Zero disables it.
	ReadTimeout time.Duration

	PriorityQueueSize int
	FrameQueueSize    int
}

// Conn is the subset of *websocket.Conn a session uses.
type Conn interface {
	wsWriter
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// UpsellFunc builds the upgrade offer for a user denied a live session.
type UpsellFunc func(ctx context.Context, user types.User) (protocol.ServerUpsell, error)

// UserLoader reloads the user before a start so a fresh purchase is honored.
type UserLoader func(ctx context.Context) (types.User, error)

type Dependencies struct {
	Conn      Conn
	Logger    *slog.Logger
	SessionID string
	Hello     protocol.ClientHello
	User      types.User
	Live      live.Config
	Config    Config

	Upsell   UpsellFunc
	LoadUser UserLoader

	// Clock and Frames default to the system clock and a ticker.
	Clock  live.Clock
	Frames live.FrameScheduler
}

type Session struct {
	conn     Conn
	cfg      Config
	logger   *slog.Logger
	id       string
	liveCfg  live.Config
	upsell   UpsellFunc
	loadUser UserLoader

	ctx    context.Context
	cancel context.CancelCauseFunc

	priority chan []byte
	frames   chan []byte

	levels     *live.LevelBuffer
	surface    *wsSurface
	controller *live.Controller

	userMu sync.Mutex
	user   types.User

	droppedFrames atomic.Int64
}

func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, errors.New("live session: conn is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg.PriorityQueueSize <= 0 {
		cfg.PriorityQueueSize = 64
	}
	if cfg.FrameQueueSize <= 0 {
		cfg.FrameQueueSize = 4
	}
	liveCfg := deps.Live
	if liveCfg == (live.Config{}) {
		liveCfg = live.DefaultConfig()
	}

	bins := deps.Hello.Bins
	if bins <= 0 {
		bins = defaultBins
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	s := &Session{
		conn:     deps.Conn,
		cfg:      cfg,
		logger:   logger.With("session_id", deps.SessionID),
		id:       deps.SessionID,
		liveCfg:  liveCfg,
		upsell:   deps.Upsell,
		loadUser: deps.LoadUser,
		ctx:      ctx,
		cancel:   cancel,
		priority: make(chan []byte, cfg.PriorityQueueSize),
		frames:   make(chan []byte, cfg.FrameQueueSize),
		levels:   live.NewLevelBuffer(bins),
		user:     deps.User,
	}
	s.surface = newSurface(s, deps.Hello.Surface)

	media := live.BufferMedia(s.levels)
	if !deps.Hello.MicAllowed() {
		media = live.MediaSourceFunc(func(context.Context) (live.MediaStream, error) {
			return nil, errMicDenied
		})
	}

	controller, err := live.NewController(live.Options{
		Config:   liveCfg,
		User:     deps.User,
		Clock:    deps.Clock,
		Frames:   deps.Frames,
		Surface:  s.surface,
		Media:    media,
		Upseller: live.UpsellerFunc(s.offerUpgrade),
		Observer: live.ObserverFunc(s.onEvent),
		Logger:   s.logger,
	})
	if err != nil {
		cancel(err)
		return nil, err
	}
	s.controller = controller
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Controller exposes the bound controller, mainly for tests.
func (s *Session) Controller() *live.Controller { return s.controller }

// Run serves the connection until either side closes it. The controller is
// disposed before Run returns.
func (s *Session) Run() error {
	if s.cfg.ReadTimeout > 0 {
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	s.enqueuePriority(s.ready())

	writerDone := make(chan error, 1)
	go func() {
		w := outboundWriter{
			ws:       s.conn,
			ctx:      s.ctx,
			cfg:      s.cfg,
			priority: s.priority,
			frames:   s.frames,
		}
		err := w.Run()
		s.cancel(errClosed)
		// Unblocks the read loop.
		_ = s.conn.Close()
		writerDone <- err
	}()

	readErr := s.readLoop()
	s.cancel(errClosed)
	s.controller.Dispose()
	writeErr := <-writerDone

	if dropped := s.droppedFrames.Load(); dropped > 0 {
		s.logger.Debug("live session dropped visualizer frames", "count", dropped)
	}
	if cause := context.Cause(s.ctx); errors.Is(cause, errBackpressure) {
		return cause
	}
	if readErr != nil {
		return readErr
	}
	if writeErr != nil && !isExpectedClose(writeErr) {
		return writeErr
	}
	return nil
}

// Cancel ends the session. It is safe from any goroutine.
func (s *Session) Cancel() {
	s.cancel(errClosed)
}

// SendWarning queues a warning frame.
func (s *Session) SendWarning(code, message string) error {
	if s.ctx.Err() != nil {
		return errClosed
	}
	if !s.enqueuePriority(protocol.ServerWarning{Type: "warning", Code: code, Message: message}) {
		return errBackpressure
	}
	return nil
}

func (s *Session) readLoop() error {
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil || isExpectedClose(err) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if messageType != websocket.TextMessage {
			s.sendError("bad_request", "binary frames are not supported", false)
			continue
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			var decErr *protocol.DecodeError
			if errors.As(err, &decErr) {
				s.sendError(decErr.Code, decErr.Error(), false)
			} else {
				s.sendError("bad_request", "invalid frame", false)
			}
			continue
		}
		s.handle(msg)
	}
}

func (s *Session) handle(msg any) {
	switch m := msg.(type) {
	case protocol.ClientHello:
		s.sendError("bad_request", "hello already received", false)
	case protocol.ClientToggle:
		s.toggle()
	case protocol.ClientStop:
		outcome, err := s.controller.Stop()
		if errors.Is(err, live.ErrDisposed) {
			return
		}
		s.enqueuePriority(protocol.ServerToggled{Type: "toggled", Outcome: outcome.String()})
	case protocol.ClientLevels:
		s.levels.Write(m.Bytes())
	case protocol.ClientResize:
		s.surface.resize(m.Width, m.Height)
	}
}

func (s *Session) toggle() {
	if s.loadUser != nil && s.controller.State() == live.StateIdle {
		user, err := s.loadUser(s.ctx)
		if err != nil {
			s.logger.Warn("reload live user; using cached entitlement", "error", err)
		} else {
			s.userMu.Lock()
			s.user = user
			s.userMu.Unlock()
			s.controller.SetUser(user)
		}
	}

	outcome, err := s.controller.Toggle(s.ctx)
	switch {
	case err == nil:
	case errors.Is(err, live.ErrMediaUnavailable):
		// Already reported through the session error event.
	case errors.Is(err, live.ErrDisposed):
		return
	default:
		s.logger.Warn("live toggle failed", "outcome", outcome.String(), "error", err)
		s.sendError("upsell_failed", "could not prepare the upgrade offer", false)
	}
	s.enqueuePriority(protocol.ServerToggled{Type: "toggled", Outcome: outcome.String()})
}

// offerUpgrade runs outside the controller lock.
func (s *Session) offerUpgrade(ctx context.Context, user types.User) error {
	offer := protocol.ServerUpsell{Message: "Live avatar sessions are a premium feature."}
	if s.upsell != nil {
		var err error
		offer, err = s.upsell(ctx, user)
		if err != nil {
			return err
		}
	}
	offer.Type = "upsell"
	s.enqueuePriority(offer)
	return nil
}

// onEvent runs with the controller lock held; it must not block.
func (s *Session) onEvent(e live.Event) {
	switch ev := e.(type) {
	case *live.StateChangedEvent:
		s.enqueuePriority(protocol.ServerState{Type: "state", From: ev.From, To: ev.To})
	case *live.TranscriptEvent:
		s.enqueuePriority(protocol.ServerTranscript{Type: "transcript", Text: ev.Text})
	case *live.StickerEvent:
		s.enqueuePriority(protocol.ServerSticker{Type: "sticker", Sticker: ev.Sticker})
	case *live.SessionErrorEvent:
		msg := "media unavailable"
		if errors.Is(ev.Err, errMicDenied) {
			msg = "microphone permission denied"
		}
		s.sendError("media_unavailable", msg, false)
	}
}

func (s *Session) ready() protocol.ServerSessionReady {
	s.userMu.Lock()
	user := s.user
	s.userMu.Unlock()
	return protocol.ServerSessionReady{
		Type:            "session.ready",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       s.id,
		User:            protocol.ReadyUser{ID: user.ID, IsPremium: user.IsPremium},
		Timings: protocol.ReadyTimings{
			ConnectDelayMS:     s.liveCfg.ConnectDelay.Milliseconds(),
			SpeakingDurationMS: s.liveCfg.SpeakingDuration.Milliseconds(),
			StickerDurationMS:  s.liveCfg.StickerDuration.Milliseconds(),
			FPS:                s.liveCfg.Visualizer.FPS,
		},
	}
}

func (s *Session) sendError(code, message string, closeAfter bool) {
	s.enqueuePriority(protocol.ServerError{
		Type:    "error",
		Scope:   "session",
		Code:    code,
		Message: message,
		Close:   closeAfter,
	})
	if closeAfter {
		s.cancel(errClosed)
	}
}

// enqueuePriority never blocks. A full queue means the client stopped
// reading; the session is ended rather than losing state.
func (s *Session) enqueuePriority(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode live frame", "error", err)
		return false
	}
	select {
	case s.priority <- payload:
		return true
	default:
		s.cancel(errBackpressure)
		return false
	}
}

// enqueueFrame drops the frame when the queue is full.
func (s *Session) enqueueFrame(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode visualizer frame", "error", err)
		return
	}
	select {
	case s.frames <- payload:
	default:
		s.droppedFrames.Add(1)
	}
}

func isExpectedClose(err error) bool {
	if err == nil || errors.Is(err, errClosed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

// wsSurface paints visualizer bars by sending them to the client.
type wsSurface struct {
	s *Session

	mu     sync.Mutex
	width  float64
	height float64
}

func newSurface(s *Session, size *protocol.SurfaceSize) *wsSurface {
	w := &wsSurface{s: s, width: protocol.DefaultSurfaceSize, height: protocol.DefaultSurfaceSize}
	if size != nil {
		w.width, w.height = size.Width, size.Height
	}
	return w
}

func (w *wsSurface) resize(width, height float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.width, w.height = width, height
}

func (w *wsSurface) Size() (float64, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

func (w *wsSurface) Clear() {
	w.s.enqueuePriority(protocol.ServerVisualizerClear{Type: "visualizer.clear"})
}

// Replace sends a whole frame; the client repaints on each one.
func (w *wsSurface) Replace(bars []live.Bar) {
	w.Draw(bars)
}

func (w *wsSurface) Draw(bars []live.Bar) {
	width, height := w.Size()
	if bars == nil {
		bars = []live.Bar{}
	}
	w.s.enqueueFrame(protocol.ServerVisualizerFrame{
		Type:   "visualizer.frame",
		Width:  width,
		Height: height,
		Bars:   bars,
	})
}
