// Package principal picks the identity a request is budgeted against.
package principal

import (
	"net"
	"net/http"
	"strings"

	"github.com/vango-go/resilios/pkg/gateway/auth"
	"github.com/vango-go/resilios/pkg/gateway/ratelimit"
)

type Kind string

const (
	KindUser Kind = "user"
	KindIP   Kind = "ip"
	KindAnon Kind = "anonymous"
)

type Resolved struct {
	Kind Kind
	// Raw is the user id or client IP. It must not be logged for IPs.
	Raw string
	// Key is a hashed identifier suitable for in-memory maps.
	Key string
}

// Resolve prefers the signed-in user and falls back to the client IP.
func Resolve(r *http.Request, trustProxyHeaders bool) Resolved {
	if r == nil {
		return Resolved{Kind: KindAnon, Key: string(KindAnon)}
	}
	if p, ok := auth.PrincipalFrom(r.Context()); ok && strings.TrimSpace(p.UserID) != "" {
		return Resolved{
			Kind: KindUser,
			Raw:  p.UserID,
			Key:  ratelimit.PrincipalKey(string(KindUser), p.UserID),
		}
	}
	ip := ClientIP(r, trustProxyHeaders)
	if ip == "" {
		return Resolved{Kind: KindAnon, Key: string(KindAnon)}
	}
	return Resolved{
		Kind: KindIP,
		Raw:  ip,
		Key:  ratelimit.PrincipalKey(string(KindIP), ip),
	}
}

// ClientIP returns the caller's address, honoring proxy headers only when
// trustProxyHeaders is set.
func ClientIP(r *http.Request, trustProxyHeaders bool) string {
	if r == nil {
		return ""
	}
	if trustProxyHeaders {
		for _, h := range []string{"CF-Connecting-IP", "X-Real-IP"} {
			if ip := parseIP(r.Header.Get(h)); ip != "" {
				return ip
			}
		}
		if raw := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); raw != "" {
			// Left-most entry is the original client.
			first, _, _ := strings.Cut(raw, ",")
			if ip := parseIP(first); ip != "" {
				return ip
			}
		}
	}
	return parseIP(r.RemoteAddr)
}

func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
