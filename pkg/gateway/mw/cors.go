package mw

import (
	"net/http"
	"strings"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/gateway/config"
)

const (
	corsAllowedMethods = "GET, POST, OPTIONS"
	corsAllowedHeaders = "Authorization, Content-Type, X-Request-ID"
	corsExposedHeaders = "X-Request-ID, Retry-After"
	corsMaxAgeSeconds  = "600"
)

// corsPolicy admits the public web origin plus RESILIOS_CORS_ORIGINS.
type corsPolicy struct {
	origins  map[string]struct{}
	wildcard bool
}

func newCORSPolicy(cfg config.Config) corsPolicy {
	p := corsPolicy{origins: make(map[string]struct{}, len(cfg.CORSAllowedOrigins)+1)}
	for origin := range cfg.CORSAllowedOrigins {
		if origin == "*" {
			p.wildcard = true
			continue
		}
		p.origins[normalizeOrigin(origin)] = struct{}{}
	}
	if cfg.PublicOrigin != "" {
		p.origins[normalizeOrigin(cfg.PublicOrigin)] = struct{}{}
	}
	return p
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

func (p corsPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.wildcard {
		return true
	}
	_, ok := p.origins[normalizeOrigin(origin)]
	return ok
}

// CORS answers preflights and tags responses for admitted origins. The
// Stripe webhook is server-to-server and never gets CORS headers.
func CORS(cfg config.Config, next http.Handler) http.Handler {
	policy := newCORSPolicy(cfg)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stripe/webhook" {
			next.ServeHTTP(w, r)
			return
		}
		origin := strings.TrimSpace(r.Header.Get("Origin"))

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !policy.allows(origin) {
				reqID, _ := RequestIDFrom(r.Context())
				writeJSONError(w, http.StatusForbidden, &core.Error{
					Type:      core.ErrPermission,
					Message:   "origin not allowed",
					Param:     "Origin",
					RequestID: reqID,
				})
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAgeSeconds)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if policy.allows(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
		}
		next.ServeHTTP(w, r)
	})
}
