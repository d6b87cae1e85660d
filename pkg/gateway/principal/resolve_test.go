package principal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/resilios/pkg/gateway/auth"
)

func TestResolve_PrefersUser(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(auth.WithPrincipal(r.Context(), &auth.Principal{UserID: "user-a_gmail_com"}))

	got := Resolve(r, false)
	if got.Kind != KindUser || got.Raw != "user-a_gmail_com" || got.Key == "" {
		t.Fatalf("resolved=%+v", got)
	}
}

func TestResolve_FallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:5555"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")

	got := Resolve(r, false)
	if got.Kind != KindIP || got.Raw != "203.0.113.9" {
		t.Fatalf("resolved=%+v", got)
	}
}

func TestClientIP_TrustedProxyHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.2")
	if ip := ClientIP(r, true); ip != "198.51.100.1" {
		t.Fatalf("ip=%q", ip)
	}
	r.Header.Set("X-Real-IP", "198.51.100.7")
	if ip := ClientIP(r, true); ip != "198.51.100.7" {
		t.Fatalf("ip=%q", ip)
	}
	r.Header.Set("X-Real-IP", "garbage")
	r.Header.Set("X-Forwarded-For", "also garbage")
	if ip := ClientIP(r, true); ip != "10.0.0.1" {
		t.Fatalf("ip=%q", ip)
	}
}

func TestResolve_Anonymous(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = ""
	if got := Resolve(r, false); got.Kind != KindAnon {
		t.Fatalf("resolved=%+v", got)
	}
	if got := Resolve(nil, false); got.Kind != KindAnon {
		t.Fatalf("resolved=%+v", got)
	}
}
