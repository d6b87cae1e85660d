package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/core/live"
	"github.com/vango-go/resilios/pkg/core/types"
	"github.com/vango-go/resilios/pkg/gateway/auth"
	"github.com/vango-go/resilios/pkg/gateway/config"
	"github.com/vango-go/resilios/pkg/gateway/lifecycle"
	"github.com/vango-go/resilios/pkg/gateway/live/protocol"
	"github.com/vango-go/resilios/pkg/gateway/live/session"
	"github.com/vango-go/resilios/pkg/gateway/live/sessions"
	"github.com/vango-go/resilios/pkg/gateway/mw"
	"github.com/vango-go/resilios/pkg/gateway/payments"
	"github.com/vango-go/resilios/pkg/gateway/principal"
	"github.com/vango-go/resilios/pkg/gateway/ratelimit"
)

// LiveHandler handles /v1/live avatar sessions over WebSocket.
type LiveHandler struct {
	Config       config.Config
	Logger       *slog.Logger
	Limiter      *ratelimit.Limiter
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
	Entitlements EntitlementReader
	// Checkout is optional; upsell offers carry a checkout URL when set.
	Checkout CheckoutCreator
	Plan     payments.Plan

	// Clock and Frames are test hooks.
	Clock  live.Clock
	Frames live.FrameScheduler
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed", RequestID: reqID}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrAPI, Message: "server is draining", Code: "draining", RequestID: reqID}, http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrPermission, Message: "origin is not allowed", Param: "Origin", RequestID: reqID}, http.StatusForbidden)
		return
	}

	if h.Limiter != nil {
		dec := h.Limiter.AcquireLiveSession(principal.Resolve(r, h.Config.TrustProxyHeaders).Key, time.Now())
		if !dec.Allowed {
			writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrRateLimit, Message: "too many active live sessions", Code: "too_many_sessions", RequestID: reqID}, http.StatusTooManyRequests)
			return
		}
		defer dec.Permit.Release()
	}

	upgrader := websocket.Upgrader{
		// Origin was checked above.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}

	hello, ok := h.readHello(conn)
	if !ok {
		return
	}

	userID, err := liveUserID(r, hello.UserID)
	if err != nil {
		h.writeWSError(conn, "forbidden", err.Error(), nil)
		return
	}
	user, err := h.loadUser(r.Context(), r, userID)
	if err != nil {
		loggerOr(h.Logger).Error("load live user", "request_id", reqID, "error", err)
		h.writeWSError(conn, "internal", "failed to load user", nil)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	sessionID := "ls_" + uuid.NewString()
	logger := loggerOr(h.Logger).With("request_id", reqID)
	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    logger,
		SessionID: sessionID,
		Hello:     hello,
		User:      user,
		Live:      h.Config.Live(),
		Config: session.Config{
			PingInterval: h.Config.LiveWSPingInterval,
			WriteTimeout: h.Config.LiveWSWriteTimeout,
			ReadTimeout:  3 * h.Config.LiveWSPingInterval,
		},
		Upsell: h.upsell(logger),
		LoadUser: func(ctx context.Context) (types.User, error) {
			return h.loadUser(ctx, r, userID)
		},
		Clock:  h.Clock,
		Frames: h.Frames,
	})
	if err != nil {
		logger.Error("create live session", "error", err)
		h.writeWSError(conn, "internal", "failed to initialize live session", nil)
		return
	}

	unregister := h.LiveSessions.Register(sessionID, sessions.Handle{
		UserID:  userID,
		Dispose: s.Cancel,
		Warn:    s.SendWarning,
	})
	defer unregister()

	logger.Info("live session opened", "session_id", sessionID, "user_id", userID, "premium", user.IsPremium)
	if err := s.Run(); err != nil {
		logger.Warn("live session ended with error", "session_id", sessionID, "error", err)
		return
	}
	logger.Info("live session closed", "session_id", sessionID)
}

func (h LiveHandler) readHello(conn *websocket.Conn) (protocol.ClientHello, bool) {
	timeout := h.Config.LiveHandshakeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	messageType, data, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, "bad_request", "failed to read hello", nil)
		return protocol.ClientHello{}, false
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, "bad_request", "first frame must be hello", nil)
		return protocol.ClientHello{}, false
	}
	decoded, err := protocol.DecodeClientMessage(data)
	if err != nil {
		var decErr *protocol.DecodeError
		if errors.As(err, &decErr) {
			var details map[string]any
			if decErr.Param != "" {
				details = map[string]any{"param": decErr.Param}
			}
			h.writeWSError(conn, decErr.Code, decErr.Error(), details)
		} else {
			h.writeWSError(conn, "bad_request", "invalid hello frame", nil)
		}
		return protocol.ClientHello{}, false
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "bad_request", "first frame must be hello", nil)
		return protocol.ClientHello{}, false
	}
	return hello, true
}

// liveUserID lets a signed-in principal win over the hello's user id.
func liveUserID(r *http.Request, claimed string) (string, error) {
	claimed = strings.TrimSpace(claimed)
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok || p.UserID == "" {
		return claimed, nil
	}
	if claimed != "" && claimed != p.UserID {
		return "", errors.New("user_id does not match the signed-in user")
	}
	return p.UserID, nil
}

func (h LiveHandler) loadUser(ctx context.Context, r *http.Request, userID string) (types.User, error) {
	user := types.User{ID: userID}
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		user.Email = p.Email
	}
	if userID == "" || h.Entitlements == nil {
		return user, nil
	}
	ent, err := h.Entitlements.Entitlement(ctx, userID)
	if err != nil {
		return types.User{}, err
	}
	user.IsPremium = ent.IsPremium
	return user, nil
}

func (h LiveHandler) upsell(logger *slog.Logger) session.UpsellFunc {
	return func(ctx context.Context, user types.User) (protocol.ServerUpsell, error) {
		offer := protocol.ServerUpsell{
			Message:   "Live avatar sessions are a premium feature. Upgrade to talk with your avatar.",
			Price:     h.Plan.Formatted(),
			TrialDays: h.Plan.TrialDays,
		}
		if h.Checkout == nil || user.ID == "" {
			return offer, nil
		}
		url, err := h.Checkout.CreateCheckout(ctx, user.ID)
		if err != nil {
			// The offer still goes out; the client falls back to /create-checkout-session.
			logger.Warn("create live upsell checkout", "user_id", user.ID, "error", err)
			return offer, nil
		}
		offer.CheckoutURL = url
		return offer, nil
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
	if origin == "" {
		return true
	}
	if h.Config.PublicOrigin != "" && origin == h.Config.PublicOrigin {
		return true
	}
	if _, ok := h.Config.CORSAllowedOrigins["*"]; ok {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h LiveHandler) writeWSError(conn *websocket.Conn, code, message string, details map[string]any) {
	payload, err := json.Marshal(protocol.ServerError{
		Type:    "error",
		Scope:   "session",
		Code:    code,
		Message: message,
		Close:   true,
		Details: details,
	})
	if err != nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteMessage(websocket.TextMessage, payload)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), deadline)
}
