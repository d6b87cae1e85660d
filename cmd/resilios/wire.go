package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/resilios/pkg/core/chat"
	"github.com/vango-go/resilios/pkg/core/providers/gemini"
	"github.com/vango-go/resilios/pkg/gateway/auth"
	"github.com/vango-go/resilios/pkg/gateway/config"
	"github.com/vango-go/resilios/pkg/gateway/payments"
	"github.com/vango-go/resilios/pkg/gateway/quota"
	gatewayserver "github.com/vango-go/resilios/pkg/gateway/server"
	"github.com/vango-go/resilios/pkg/store"
)

// paypalPeriod is how long a captured PayPal order grants premium.
const paypalPeriod = 30 * 24 * time.Hour

// services is everything main opens, plus how to close it.
type services struct {
	deps    gatewayserver.Deps
	closers []func() error
}

func (s *services) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// wireServices opens the database and redis and builds the route
// dependencies. Services without configuration are left nil and answer
// not_configured.
func wireServices(ctx context.Context, cfg config.Config, logger *slog.Logger) (*services, error) {
	svc := &services{}

	var st *store.Store
	if cfg.DatabaseURL != "" {
		var err error
		st, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, st.Close)
		if err := st.Migrate(ctx, logger); err != nil {
			_ = svc.Close()
			return nil, err
		}
		svc.deps.Store = st
	} else {
		logger.Warn("DATABASE_URL not set; chat, premium and payments are disabled")
	}

	var usage chat.UsageCounter
	switch {
	case cfg.RedisURL != "":
		rdb, err := quota.Open(ctx, cfg.RedisURL)
		if err != nil {
			_ = svc.Close()
			return nil, err
		}
		svc.closers = append(svc.closers, rdb.Close)
		usage = quota.New(rdb)
	case st != nil:
		usage = chat.StoreUsage{Counter: st}
	}

	backend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}

	plan := payments.Plan{PriceCents: cfg.MonthlyPriceCents, TrialDays: cfg.TrialDays}
	if st != nil {
		svc.deps.Chat = chat.NewService(st, st, usage, backend, chat.ServiceConfig{
			FreePerDay:   cfg.FreeChatsPerDay,
			HistoryLimit: cfg.HistoryLimit,
		}, logger)

		if cfg.HasStripe() {
			svc.deps.Stripe = payments.NewStripe(payments.StripeConfig{
				SecretKey:     cfg.StripeSecretKey,
				WebhookSecret: cfg.StripeWebhookSecret,
				PublicOrigin:  cfg.PublicOrigin,
				Plan:          plan,
			}, st, logger)
		}
		if cfg.HasPayPal() {
			svc.deps.PayPal = payments.NewPayPal(payments.PayPalConfig{
				ClientID:     cfg.PayPalClientID,
				Secret:       cfg.PayPalSecret,
				BaseURL:      cfg.PayPalBaseURL(),
				PublicOrigin: cfg.PublicOrigin,
				Plan:         plan,
				Period:       paypalPeriod,
				Timeout:      cfg.UpstreamTimeout,
			}, st, logger)
		}
	}

	issuer, err := newIssuer(cfg, logger)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	login := auth.Authenticator{Issuer: issuer}
	if cfg.HasWorkOS() {
		login.Verifier = auth.NewWorkOS(cfg.WorkOSAPIKey, cfg.WorkOSClientID)
	}
	svc.deps.Tokens = issuer
	svc.deps.Login = login

	return svc, nil
}

func newBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (chat.Backend, error) {
	if !cfg.HasGemini() {
		logger.Warn("GEMINI_API_KEY not set; replies use the fallback text")
		return chat.FallbackBackend{}, nil
	}
	p, err := gemini.New(ctx, cfg.GeminiAPIKey,
		gemini.WithModel(cfg.GeminiModel),
		gemini.WithThinkingBudget(int32(cfg.GeminiThinkingBudget)),
		gemini.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout}),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("gemini backend ready", "model", p.Model())
	return p, nil
}

// newIssuer signs session tokens. Without RESILIOS_JWT_SECRET a random
// secret is used and tokens do not survive a restart.
func newIssuer(cfg config.Config, logger *slog.Logger) (*auth.Issuer, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("RESILIOS_JWT_SECRET not set; using an ephemeral signing key")
	}
	return auth.NewIssuer(secret, cfg.TokenTTL)
}
