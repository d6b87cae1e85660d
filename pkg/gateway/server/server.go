package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/core/mascot"
	"github.com/vango-go/resilios/pkg/gateway/apierror"
	"github.com/vango-go/resilios/pkg/gateway/config"
	"github.com/vango-go/resilios/pkg/gateway/handlers"
	"github.com/vango-go/resilios/pkg/gateway/lifecycle"
	"github.com/vango-go/resilios/pkg/gateway/live/sessions"
	"github.com/vango-go/resilios/pkg/gateway/mw"
	"github.com/vango-go/resilios/pkg/gateway/payments"
	"github.com/vango-go/resilios/pkg/gateway/ratelimit"
)

// Store is the persistence the routes need. *store.Store implements it.
type Store interface {
	handlers.Pinger
	handlers.EntitlementReader
}

// Stripe is the subscription provider. *payments.Stripe implements it.
type Stripe interface {
	handlers.CheckoutCreator
	handlers.WebhookProcessor
}

// Deps are the services behind the routes. Nil services answer with a
// not_configured error.
type Deps struct {
	Chat    handlers.ChatService
	Store   Store
	Stripe  Stripe
	PayPal  handlers.OrderProcessor
	Login   handlers.LoginService
	Tokens  mw.TokenParser
	Mascots *mascot.Catalog
}

type Server struct {
	cfg    config.Config
	deps   Deps
	logger *slog.Logger
	mux    *http.ServeMux

	limiter      *ratelimit.Limiter
	lifecycle    *lifecycle.Lifecycle
	liveSessions *sessions.Tracker
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Mascots == nil {
		deps.Mascots = mascot.New(os.DirFS(cfg.MascotDir))
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		mux:    http.NewServeMux(),
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.LimitRPS,
			Burst:                 cfg.LimitBurst,
			MaxConcurrentRequests: cfg.LimitMaxConcurrentRequests,
			MaxLiveSessions:       cfg.LiveMaxSessions,
		}),
		lifecycle:    &lifecycle.Lifecycle{},
		liveSessions: sessions.NewTracker(),
	}
	s.lifecycle.OnDrain(func() {
		n := s.liveSessions.WarnAll("draining", "server is shutting down")
		logger.Info("warned live sessions", "count", n)
	})

	s.routes()
	return s
}

func (s *Server) routes() {
	var db handlers.Pinger
	var ents handlers.EntitlementReader
	if s.deps.Store != nil {
		db, ents = s.deps.Store, s.deps.Store
	}
	plan := payments.Plan{PriceCents: s.cfg.MonthlyPriceCents, TrialDays: s.cfg.TrialDays}

	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{Config: s.cfg, Database: db, Draining: s.lifecycle.IsDraining})
	s.mux.Handle("GET /config", handlers.PublicConfigHandler{Config: s.cfg})

	if s.deps.Chat != nil {
		s.mux.Handle("POST /chat/send", handlers.ChatSendHandler{Service: s.deps.Chat, MaxAttachmentBytes: s.cfg.MaxAttachmentBytes, Logger: s.logger})
		s.mux.Handle("GET /chat/history/{user_id}", handlers.ChatHistoryHandler{Service: s.deps.Chat, Logger: s.logger})
	} else {
		s.mux.Handle("POST /chat/send", notConfigured("chat"))
		s.mux.Handle("GET /chat/history/{user_id}", notConfigured("chat"))
	}

	mascots := handlers.MascotHandler{Catalog: s.deps.Mascots, Logger: s.logger}
	s.mux.HandleFunc("GET /mascots", mascots.List)
	s.mux.HandleFunc("GET /mascot/random", mascots.Random)
	s.mux.HandleFunc("GET /mascot/{index}", mascots.ByIndex)
	if s.cfg.MediaDir != "" {
		s.mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(s.cfg.MediaDir))))
	}

	if ents != nil {
		s.mux.Handle("GET /user/{user_id}/premium", handlers.PremiumHandler{Entitlements: ents, Logger: s.logger})
	} else {
		s.mux.Handle("GET /user/{user_id}/premium", notConfigured("database"))
	}

	var checkout handlers.CheckoutCreator
	if s.deps.Stripe != nil {
		checkout = s.deps.Stripe
		s.mux.Handle("POST /create-checkout-session", handlers.CheckoutHandler{Checkout: s.deps.Stripe, Logger: s.logger})
		s.mux.Handle("POST /stripe/webhook", handlers.StripeWebhookHandler{Webhooks: s.deps.Stripe, Logger: s.logger})
	} else {
		s.mux.Handle("POST /create-checkout-session", notConfigured("stripe"))
		s.mux.Handle("POST /stripe/webhook", notConfigured("stripe"))
	}
	if s.deps.PayPal != nil {
		s.mux.Handle("POST /paypal/create-order", handlers.PayPalCreateOrderHandler{Orders: s.deps.PayPal, Logger: s.logger})
		s.mux.Handle("POST /paypal/capture-order", handlers.PayPalCaptureOrderHandler{Orders: s.deps.PayPal, Logger: s.logger})
	} else {
		s.mux.Handle("POST /paypal/create-order", notConfigured("paypal"))
		s.mux.Handle("POST /paypal/capture-order", notConfigured("paypal"))
	}

	if s.deps.Login != nil {
		s.mux.Handle("POST /auth/login", handlers.LoginHandler{Auth: s.deps.Login, Logger: s.logger})
	} else {
		s.mux.Handle("POST /auth/login", notConfigured("auth"))
	}

	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Config:       s.cfg,
		Logger:       s.logger,
		Limiter:      s.limiter,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.liveSessions,
		Entitlements: ents,
		Checkout:     checkout,
		Plan:         plan,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func notConfigured(what string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, _ := mw.RequestIDFrom(r.Context())
		coreErr := core.NewNotConfiguredError(what + " is not configured")
		coreErr.RequestID = reqID
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotImplemented)
		_ = json.NewEncoder(w).Encode(apierror.Envelope{Error: coreErr})
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Timeout(s.cfg.HandlerTimeout, h)
	h = mw.RateLimit(s.cfg, s.limiter, h)
	h = mw.Auth(s.deps.Tokens, h)
	h = mw.CORS(s.cfg, h)
	h = mw.BodyLimit(s.cfg.MaxBodyBytes, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining fails readiness, refuses new live sessions and warns open ones.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

func (s *Server) LiveSessionCount() int {
	return s.liveSessions.Count()
}

func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.liveSessions.Wait(ctx)
}

func (s *Server) DisposeLiveSessions() int {
	return s.liveSessions.DisposeAll()
}
