package resilios

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/resilios/pkg/core"
	liveproto "github.com/vango-go/resilios/pkg/gateway/live/protocol"
)

const (
	defaultLiveConnectTimeout = 15 * time.Second
	liveEventBuffer           = 256
)

// ErrLiveClosed is returned when writing to a closed LiveSession.
var ErrLiveClosed = errors.New("live session is closed")

// LiveService provides access to the gateway live avatar session (/v1/live).
type LiveService struct {
	client *Client
}

// LiveConnectRequest configures the session hello.
type LiveConnectRequest struct {
	// UserID is used only when the client carries no token. Empty falls
	// back to WithUserID.
	UserID string

	// MicDenied tells the gateway the user refused microphone access.
	MicDenied bool

	// Surface is the visualizer canvas size; nil uses the gateway default.
	Surface *liveproto.SurfaceSize

	// Bins is the number of levels per SendLevels call.
	Bins int
}

// LiveEvent is a server frame emitted by LiveSession.Events().
type LiveEvent interface {
	liveEventType() string
}

type LiveReadyEvent struct{ Ready liveproto.ServerSessionReady }

func (e LiveReadyEvent) liveEventType() string { return "session.ready" }

type LiveStateEvent struct{ State liveproto.ServerState }

func (e LiveStateEvent) liveEventType() string { return "state" }

type LiveTranscriptEvent struct{ Text string }

func (e LiveTranscriptEvent) liveEventType() string { return "transcript" }

// LiveStickerEvent shows a sticker, or hides it when Sticker.Sticker is nil.
type LiveStickerEvent struct{ Sticker liveproto.ServerSticker }

func (e LiveStickerEvent) liveEventType() string { return "sticker" }

type LiveToggledEvent struct{ Outcome string }

func (e LiveToggledEvent) liveEventType() string { return "toggled" }

type LiveUpsellEvent struct{ Upsell liveproto.ServerUpsell }

func (e LiveUpsellEvent) liveEventType() string { return "upsell" }

type LiveFrameEvent struct{ Frame liveproto.ServerVisualizerFrame }

func (e LiveFrameEvent) liveEventType() string { return "visualizer.frame" }

type LiveClearEvent struct{}

func (e LiveClearEvent) liveEventType() string { return "visualizer.clear" }

type LiveWarningEvent struct{ Warning liveproto.ServerWarning }

func (e LiveWarningEvent) liveEventType() string { return "warning" }

type LiveErrorEvent struct{ Error liveproto.ServerError }

func (e LiveErrorEvent) liveEventType() string { return "error" }

// LiveUnknownEvent carries frames this client does not recognize.
type LiveUnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e LiveUnknownEvent) liveEventType() string { return e.Type }

// LiveSession is an open /v1/live connection.
type LiveSession struct {
	conn  *websocket.Conn
	ready liveproto.ServerSessionReady

	events chan LiveEvent
	done   chan struct{}
	// closing is closed by Close; it releases a read loop blocked on a full
	// events buffer.
	closing chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Ready returns the session.ready frame the gateway answered with.
func (s *LiveSession) Ready() liveproto.ServerSessionReady {
	if s == nil {
		return liveproto.ServerSessionReady{}
	}
	return s.ready
}

// Events yields server frames. It is closed when the connection ends.
func (s *LiveSession) Events() <-chan LiveEvent {
	if s == nil {
		return nil
	}
	return s.events
}

// Toggle starts an idle session or stops a running one. The result arrives
// as a LiveToggledEvent.
func (s *LiveSession) Toggle() error {
	return s.sendJSON(liveproto.ClientToggle{Type: "toggle"})
}

// Stop ends a running session.
func (s *LiveSession) Stop() error {
	return s.sendJSON(liveproto.ClientStop{Type: "stop"})
}

// SendLevels sends one amplitude snapshot.
func (s *LiveSession) SendLevels(levels []uint8) error {
	if len(levels) > liveproto.MaxLevels {
		return core.NewInvalidRequestErrorWithParam(fmt.Sprintf("levels must have at most %d values", liveproto.MaxLevels), "levels")
	}
	msg := liveproto.ClientLevels{Type: "levels", Levels: make([]int, len(levels))}
	for i, v := range levels {
		msg.Levels[i] = int(v)
	}
	return s.sendJSON(msg)
}

// Resize reports a new visualizer canvas size.
func (s *LiveSession) Resize(width, height float64) error {
	return s.sendJSON(liveproto.ClientResize{Type: "resize", SurfaceSize: liveproto.SurfaceSize{Width: width, Height: height}})
}

func (s *LiveSession) sendJSON(v any) error {
	if s == nil {
		return fmt.Errorf("session must not be nil")
	}
	if s.closed.Load() {
		return ErrLiveClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Close closes the websocket session and waits for the read loop to end.
func (s *LiveSession) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closing)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err returns the terminal session error (if any). It blocks until the
// connection ends.
func (s *LiveSession) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *LiveSession) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *LiveSession) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.setErr(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, err := decodeLiveFrame(data)
		if err != nil {
			s.setErr(err)
			return
		}
		if errEvent, ok := event.(LiveErrorEvent); ok && errEvent.Error.Close {
			s.setErr(liveErrorToCore(errEvent.Error))
		}
		s.emitEvent(event)
	}
}

func (s *LiveSession) emitEvent(event LiveEvent) {
	if event == nil {
		return
	}
	// Visualizer frames are superseded by the next one and may be dropped
	// when the consumer lags. Everything else waits for room.
	if _, ok := event.(LiveFrameEvent); ok {
		select {
		case s.events <- event:
		default:
		}
		return
	}
	select {
	case s.events <- event:
	case <-s.closing:
	}
}

func decodeLiveFrame(data []byte) (LiveEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode live frame: %w", err)
	}

	switch envelope.Type {
	case "session.ready":
		var msg liveproto.ServerSessionReady
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode session.ready: %w", err)
		}
		return LiveReadyEvent{Ready: msg}, nil
	case "state":
		var msg liveproto.ServerState
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		return LiveStateEvent{State: msg}, nil
	case "transcript":
		var msg liveproto.ServerTranscript
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
		return LiveTranscriptEvent{Text: msg.Text}, nil
	case "sticker":
		var msg liveproto.ServerSticker
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode sticker: %w", err)
		}
		return LiveStickerEvent{Sticker: msg}, nil
	case "toggled":
		var msg liveproto.ServerToggled
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode toggled: %w", err)
		}
		return LiveToggledEvent{Outcome: msg.Outcome}, nil
	case "upsell":
		var msg liveproto.ServerUpsell
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode upsell: %w", err)
		}
		return LiveUpsellEvent{Upsell: msg}, nil
	case "visualizer.frame":
		var msg liveproto.ServerVisualizerFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode visualizer.frame: %w", err)
		}
		return LiveFrameEvent{Frame: msg}, nil
	case "visualizer.clear":
		return LiveClearEvent{}, nil
	case "warning":
		var msg liveproto.ServerWarning
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode warning: %w", err)
		}
		return LiveWarningEvent{Warning: msg}, nil
	case "error":
		var msg liveproto.ServerError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode error frame: %w", err)
		}
		return LiveErrorEvent{Error: msg}, nil
	default:
		return LiveUnknownEvent{Type: envelope.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

func liveErrorToCore(e liveproto.ServerError) *core.Error {
	out := &core.Error{
		Type:    core.ErrAPI,
		Message: strings.TrimSpace(e.Message),
		Code:    strings.TrimSpace(e.Code),
	}
	switch out.Code {
	case "bad_request", "unsupported":
		out.Type = core.ErrInvalidRequest
	case "forbidden":
		out.Type = core.ErrPermission
	}
	if param, ok := e.Details["param"].(string); ok {
		out.Param = param
	}
	return out
}

// Connect dials /v1/live, sends the hello and waits for session.ready.
func (s *LiveService) Connect(ctx context.Context, req *LiveConnectRequest) (*LiveSession, error) {
	if s == nil || s.client == nil {
		return nil, core.NewInvalidRequestError("live service is not initialized")
	}
	if req == nil {
		req = &LiveConnectRequest{}
	}

	wsURL, err := s.client.websocketEndpoint("/v1/live")
	if err != nil {
		return nil, err
	}

	hello := liveproto.ClientHello{
		Type:            "hello",
		ProtocolVersion: liveproto.ProtocolVersion1,
		UserID:          s.client.resolveUser(req.UserID),
		Mic:             liveproto.MicGranted,
		Surface:         req.Surface,
		Bins:            req.Bins,
	}
	if req.MicDenied {
		hello.Mic = liveproto.MicDenied
	}
	if err := liveproto.ValidateHello(hello); err != nil {
		var de *liveproto.DecodeError
		if errors.As(err, &de) {
			return nil, core.NewInvalidRequestErrorWithParam(de.Message, de.Param)
		}
		return nil, err
	}

	headers := make(http.Header)
	if token := s.client.Token(); token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: defaultLiveConnectTimeout,
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultLiveConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			if resp.StatusCode >= 400 {
				return nil, decodeErrorResponse(resp, wsURL, http.MethodGet)
			}
			return nil, &TransportError{Op: http.MethodGet, URL: wsURL, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return nil, &TransportError{Op: http.MethodGet, URL: wsURL, Err: err}
	}

	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send live hello: %w", err)
	}

	deadline := time.Now().Add(defaultLiveConnectTimeout)
	if d, ok := dialCtx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read session.ready: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if messageType != websocket.TextMessage {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first live frame type %d", messageType)
	}

	first, err := decodeLiveFrame(payload)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	switch e := first.(type) {
	case LiveReadyEvent:
		session := &LiveSession{
			conn:   conn,
			ready:  e.Ready,
			events:  make(chan LiveEvent, liveEventBuffer),
			done:    make(chan struct{}),
			closing: make(chan struct{}),
		}
		session.emitEvent(e)
		go session.readLoop()
		s.client.logger.Debug("live session ready", "session_id", e.Ready.SessionID, "premium", e.Ready.User.IsPremium)
		return session, nil
	case LiveErrorEvent:
		_ = conn.Close()
		return nil, liveErrorToCore(e.Error)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first live frame type %q", first.liveEventType())
	}
}

func (c *Client) websocketEndpoint(path string) (string, error) {
	endpoint, err := c.endpoint(path, nil)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", core.NewInvalidRequestError("invalid gateway base URL")
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", core.NewInvalidRequestError("gateway base URL must use http(s) or ws(s)")
	}
	return u.String(), nil
}
