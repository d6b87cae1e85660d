package session

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/resilios/pkg/core/live"
	"github.com/vango-go/resilios/pkg/core/types"
	"github.com/vango-go/resilios/pkg/gateway/live/protocol"
)

type inbound struct {
	messageType int
	data        []byte
	err         error
}

type fakeConn struct {
	in chan inbound

	mu     sync.Mutex
	writes []recordedWrite

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan inbound, 16), closed: make(chan struct{})}
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, recordedWrite{messageType: messageType, data: string(data)})
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	return c.WriteMessage(messageType, data)
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-c.in:
		return m.messageType, m.data, m.err
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) send(t *testing.T, v string) {
	t.Helper()
	c.in <- inbound{messageType: websocket.TextMessage, data: []byte(v)}
}

func (c *fakeConn) hangUp() {
	c.in <- inbound{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
}

func (c *fakeConn) frames() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, w := range c.writes {
		if w.messageType != websocket.TextMessage {
			continue
		}
		var m map[string]any
		if json.Unmarshal([]byte(w.data), &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) countType(typ string) int {
	n := 0
	for _, f := range c.frames() {
		if f["type"] == typ {
			n++
		}
	}
	return n
}

// waitFor blocks until the n-th frame (1-based) matching pred was written.
func (c *fakeConn) waitFor(t *testing.T, n int, pred func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		seen := 0
		for _, f := range c.frames() {
			if pred(f) {
				seen++
				if seen == n {
					return f
				}
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("frame not written; got %v", c.frames())
	return nil
}

func ofType(typ string) func(map[string]any) bool {
	return func(m map[string]any) bool { return m["type"] == typ }
}

func toggled(outcome string) func(map[string]any) bool {
	return func(m map[string]any) bool { return m["type"] == "toggled" && m["outcome"] == outcome }
}

type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	c       *manualClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) live.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{c: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	for {
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at < c.timers[j].at })
		var due *manualTimer
		for _, t := range c.timers {
			if !t.fired && !t.stopped && t.at <= target {
				due = t
				break
			}
		}
		if due == nil {
			break
		}
		due.fired = true
		c.now = due.at
		c.mu.Unlock()
		due.f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

type manualFrames struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

func (f *manualFrames) RequestFrames(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fns == nil {
		f.fns = make(map[int]func())
	}
	f.next++
	id := f.next
	f.fns[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.fns, id)
	}
}

func (f *manualFrames) Tick() {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.fns))
	for _, fn := range f.fns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type harness struct {
	conn   *fakeConn
	clock  *manualClock
	frames *manualFrames
	sess   *Session
	done   chan error
}

func start(t *testing.T, deps Dependencies) *harness {
	t.Helper()
	h := &harness{conn: newFakeConn(), clock: &manualClock{}, frames: &manualFrames{}, done: make(chan error, 1)}
	deps.Conn = h.conn
	deps.Clock = h.clock
	deps.Frames = h.frames
	if deps.SessionID == "" {
		deps.SessionID = "ls_test"
	}
	if deps.Hello.ProtocolVersion == "" {
		deps.Hello = protocol.ClientHello{Type: "hello", ProtocolVersion: "1", Mic: protocol.MicGranted, Bins: 8}
	}
	deps.Config = Config{PingInterval: time.Hour, WriteTimeout: time.Second}

	sess, err := New(deps)
	require.NoError(t, err)
	h.sess = sess
	go func() { h.done <- sess.Run() }()
	t.Cleanup(func() {
		sess.Cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Errorf("session did not stop")
		}
	})
	return h
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		h.done <- err
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestSession_ReadyFrameFirst(t *testing.T) {
	h := start(t, Dependencies{User: types.User{ID: "user-a", IsPremium: true}})

	ready := h.conn.waitFor(t, 1, ofType("session.ready"))
	assert.Equal(t, "ls_test", ready["session_id"])
	assert.Equal(t, "1", ready["protocol_version"])
	user := ready["user"].(map[string]any)
	assert.Equal(t, "user-a", user["id"])
	assert.Equal(t, true, user["is_premium"])
	timings := ready["timings"].(map[string]any)
	assert.Equal(t, float64(700), timings["connect_delay_ms"])
	assert.Equal(t, "session.ready", h.conn.frames()[0]["type"])
}

func TestSession_PremiumFullCycle(t *testing.T) {
	h := start(t, Dependencies{User: types.User{ID: "user-a", IsPremium: true}})
	cfg := live.DefaultConfig()

	h.conn.send(t, `{"type":"toggle"}`)
	h.conn.waitFor(t, 1, toggled("started"))

	st := h.conn.waitFor(t, 1, ofType("state"))
	assert.Equal(t, "IDLE", st["from"])
	assert.Equal(t, "CONNECTING", st["to"])
	tr := h.conn.waitFor(t, 1, ofType("transcript"))
	assert.Equal(t, cfg.ConnectingText, tr["text"])

	h.clock.Advance(cfg.ConnectDelay)
	st = h.conn.waitFor(t, 2, ofType("state"))
	assert.Equal(t, "SPEAKING", st["to"])
	tr = h.conn.waitFor(t, 2, ofType("transcript"))
	assert.Equal(t, cfg.GreetingText, tr["text"])
	sticker := h.conn.waitFor(t, 1, ofType("sticker"))
	require.NotNil(t, sticker["sticker"])

	h.conn.send(t, `{"type":"levels","levels":[255,255,255,255,255,255,255,255]}`)
	require.Eventually(t, func() bool {
		h.frames.Tick()
		return h.conn.countType("visualizer.frame") > 0
	}, 2*time.Second, 5*time.Millisecond)
	frame := h.conn.waitFor(t, 1, ofType("visualizer.frame"))
	assert.NotEmpty(t, frame["bars"])
	assert.Equal(t, float64(protocol.DefaultSurfaceSize), frame["width"])

	h.clock.Advance(cfg.SpeakingDuration)
	st = h.conn.waitFor(t, 3, ofType("state"))
	assert.Equal(t, "SPEAKING", st["from"])
	assert.Equal(t, "IDLE", st["to"])
	h.conn.waitFor(t, 1, ofType("visualizer.clear"))
	assert.Equal(t, live.StateIdle, h.sess.Controller().State())
	assert.Equal(t, 0, h.sess.Controller().PendingTimers())
	assert.Equal(t, 0, h.sess.Controller().Subscriptions())
}

func TestSession_StopMidConnecting(t *testing.T) {
	h := start(t, Dependencies{User: types.User{ID: "user-a", IsPremium: true}})

	h.conn.send(t, `{"type":"toggle"}`)
	h.conn.waitFor(t, 1, toggled("started"))
	h.conn.send(t, `{"type":"stop"}`)
	h.conn.waitFor(t, 1, toggled("stopped"))

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, live.StateIdle, h.sess.Controller().State())
	assert.Equal(t, 0, h.conn.countType("sticker"))

	h.conn.send(t, `{"type":"stop"}`)
	h.conn.waitFor(t, 1, toggled("none"))
}

func TestSession_StopWhileIdleNeverStartsOrUpsells(t *testing.T) {
	var offers, reloads int
	h := start(t, Dependencies{
		User: types.User{ID: "user-free"},
		Upsell: func(context.Context, types.User) (protocol.ServerUpsell, error) {
			offers++
			return protocol.ServerUpsell{Message: "upgrade"}, nil
		},
		LoadUser: func(context.Context) (types.User, error) {
			reloads++
			return types.User{ID: "user-free", IsPremium: true}, nil
		},
	})

	h.conn.send(t, `{"type":"stop"}`)
	h.conn.waitFor(t, 1, toggled("none"))

	assert.Equal(t, live.StateIdle, h.sess.Controller().State())
	assert.Equal(t, 0, offers)
	assert.Equal(t, 0, reloads)
	assert.Equal(t, 0, h.conn.countType("upsell"))
	assert.Equal(t, 0, h.conn.countType("state"))
	assert.Equal(t, 0, h.sess.Controller().PendingTimers())
}

func TestSession_NonPremiumGetsUpsell(t *testing.T) {
	var offers int
	h := start(t, Dependencies{
		User: types.User{ID: "user-free"},
		Upsell: func(ctx context.Context, user types.User) (protocol.ServerUpsell, error) {
			offers++
			return protocol.ServerUpsell{Message: "upgrade", Price: "$4.99/month", CheckoutURL: "https://checkout.example/" + user.ID}, nil
		},
	})

	h.conn.send(t, `{"type":"toggle"}`)
	h.conn.waitFor(t, 1, toggled("upsell"))

	up := h.conn.waitFor(t, 1, ofType("upsell"))
	assert.Equal(t, "https://checkout.example/user-free", up["checkout_url"])
	assert.Equal(t, 1, offers)
	assert.Equal(t, 0, h.conn.countType("state"))
	assert.Equal(t, 0, h.sess.Controller().PendingTimers())
}

func TestSession_UpsellFailureReported(t *testing.T) {
	h := start(t, Dependencies{
		User: types.User{ID: "user-free"},
		Upsell: func(context.Context, types.User) (protocol.ServerUpsell, error) {
			return protocol.ServerUpsell{}, errors.New("stripe down")
		},
	})

	h.conn.send(t, `{"type":"toggle"}`)
	h.conn.waitFor(t, 1, toggled("upsell"))
	errFrame := h.conn.waitFor(t, 1, ofType("error"))
	assert.Equal(t, "upsell_failed", errFrame["code"])
}

func TestSession_ReloadsUserBeforeStart(t *testing.T) {
	h := start(t, Dependencies{
		User: types.User{ID: "user-a"},
		LoadUser: func(context.Context) (types.User, error) {
			return types.User{ID: "user-a", IsPremium: true}, nil
		},
	})

	h.conn.send(t, `{"type":"toggle"}`)
	h.conn.waitFor(t, 1, toggled("started"))
}

func TestSession_MicDenied(t *testing.T) {
	h := start(t, Dependencies{
		User:  types.User{ID: "user-a", IsPremium: true},
		Hello: protocol.ClientHello{Type: "hello", ProtocolVersion: "1", Mic: protocol.MicDenied},
	})

	h.conn.send(t, `{"type":"toggle"}`)
	h.conn.waitFor(t, 1, toggled("none"))
	errFrame := h.conn.waitFor(t, 1, ofType("error"))
	assert.Equal(t, "media_unavailable", errFrame["code"])
	assert.Equal(t, "microphone permission denied", errFrame["message"])
	assert.Equal(t, live.StateIdle, h.sess.Controller().State())
}

func TestSession_BadFramesKeepSessionOpen(t *testing.T) {
	h := start(t, Dependencies{User: types.User{ID: "user-a", IsPremium: true}})

	h.conn.send(t, `not json`)
	h.conn.send(t, `{"type":"hello","protocol_version":"1"}`)
	h.conn.in <- inbound{messageType: websocket.BinaryMessage, data: []byte{1, 2}}

	h.conn.waitFor(t, 3, ofType("error"))
	h.conn.send(t, `{"type":"toggle"}`)
	h.conn.waitFor(t, 1, toggled("started"))
}

func TestSession_ClientCloseDisposesController(t *testing.T) {
	h := start(t, Dependencies{User: types.User{ID: "user-a", IsPremium: true}})

	h.conn.send(t, `{"type":"toggle"}`)
	h.conn.waitFor(t, 1, toggled("started"))
	h.conn.hangUp()

	require.NoError(t, h.wait(t))
	ctl := h.sess.Controller()
	assert.True(t, ctl.Disposed())
	assert.Equal(t, live.StateIdle, ctl.State())
	assert.Equal(t, 0, ctl.PendingTimers())
}

func TestSession_CancelClosesSocket(t *testing.T) {
	h := start(t, Dependencies{User: types.User{ID: "user-a"}})
	h.conn.waitFor(t, 1, ofType("session.ready"))

	require.NoError(t, h.sess.SendWarning("draining", "server is shutting down"))
	h.conn.waitFor(t, 1, ofType("warning"))

	h.sess.Cancel()
	require.NoError(t, h.wait(t))

	h.conn.mu.Lock()
	last := h.conn.writes[len(h.conn.writes)-1]
	h.conn.mu.Unlock()
	assert.Equal(t, websocket.CloseMessage, last.messageType)
	assert.Error(t, h.sess.SendWarning("late", "after close"))
}
