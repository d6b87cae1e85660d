package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/resilios/pkg/gateway/apierror"
	"github.com/vango-go/resilios/pkg/gateway/auth"
	"github.com/vango-go/resilios/pkg/gateway/config"
	"github.com/vango-go/resilios/pkg/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func jsonRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withPrincipal(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithPrincipal(r.Context(), &auth.Principal{UserID: userID, Email: userID + "@gmail.com"}))
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) apierror.Envelope {
	t.Helper()
	var env apierror.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v body=%q", err, rr.Body.String())
	}
	if env.Error == nil {
		t.Fatalf("missing error in envelope: %q", rr.Body.String())
	}
	return env
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body: %v body=%q", err, rr.Body.String())
	}
}

type fakeEntitlements struct {
	byUser map[string]store.Entitlement
	err    error
}

func (f fakeEntitlements) Entitlement(_ context.Context, userID string) (store.Entitlement, error) {
	if f.err != nil {
		return store.Entitlement{}, f.err
	}
	if e, ok := f.byUser[userID]; ok {
		return e, nil
	}
	return store.Entitlement{UserID: userID}, nil
}
