package mw

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/gateway/config"
	"github.com/vango-go/resilios/pkg/gateway/principal"
	"github.com/vango-go/resilios/pkg/gateway/ratelimit"
)

// RateLimit budgets requests per signed-in user, or per client IP for
// anonymous callers. Live upgrades are budgeted by the live handler.
func RateLimit(cfg config.Config, limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health endpoints must remain cheap and reliable.
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodOptions || strings.HasPrefix(r.URL.Path, "/media/") {
			next.ServeHTTP(w, r)
			return
		}
		// Stripe retries webhooks on 429; let them through.
		if r.URL.Path == "/stripe/webhook" || isWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		who := principal.Resolve(r, cfg.TrustProxyHeaders)
		dec := limiter.AcquireRequest(who.Key, time.Now())
		if !dec.Allowed {
			reqID, _ := RequestIDFrom(r.Context())
			var retryAfter *int
			if dec.RetryAfter > 0 {
				v := dec.RetryAfter
				retryAfter = &v
				w.Header().Set("Retry-After", strconv.Itoa(v))
			}
			writeJSONError(w, http.StatusTooManyRequests, &core.Error{
				Type:       core.ErrRateLimit,
				Message:    "rate limit exceeded",
				RequestID:  reqID,
				RetryAfter: retryAfter,
			})
			return
		}
		if dec.Permit != nil {
			defer dec.Permit.Release()
		}

		next.ServeHTTP(w, r)
	})
}
