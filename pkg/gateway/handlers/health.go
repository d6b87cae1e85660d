package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vango-go/resilios/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyHandler struct {
	Config config.Config
	// Database is optional; without it chat history is unavailable.
	Database Pinger
	// Draining reports graceful shutdown.
	Draining func() bool
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool     `json:"ok"`
		Draining      bool     `json:"draining,omitempty"`
		Database      bool     `json:"database"`
		Gemini        bool     `json:"gemini"`
		Stripe        bool     `json:"stripe"`
		PayPal        bool     `json:"paypal"`
		LimitsEnabled bool     `json:"limits_enabled"`
		Issues        []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	if err := h.Config.Validate(); err != nil {
		issues = append(issues, err.Error())
	}

	dbOK := false
	if h.Database == nil {
		issues = append(issues, "database not configured")
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.Database.Ping(ctx)
		cancel()
		if err != nil {
			issues = append(issues, "database unreachable")
		} else {
			dbOK = true
		}
	}

	draining := h.Draining != nil && h.Draining()
	if draining {
		issues = append(issues, "draining")
	}

	limitsEnabled := (h.Config.LimitRPS > 0 && h.Config.LimitBurst > 0) ||
		(h.Config.LimitMaxConcurrentRequests > 0)

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResp{
		OK:            ok,
		Draining:      draining,
		Database:      dbOK,
		Gemini:        h.Config.HasGemini(),
		Stripe:        h.Config.HasStripe(),
		PayPal:        h.Config.HasPayPal(),
		LimitsEnabled: limitsEnabled,
		Issues:        issues,
	})
}
