package mw

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/gateway/auth"
)

func newIssuer(t *testing.T) *auth.Issuer {
	t.Helper()
	iss, err := auth.NewIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	return iss
}

func principalEcho(t *testing.T, got **auth.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := auth.PrincipalFrom(r.Context()); ok {
			*got = p
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuth_NoTokenIsAnonymous(t *testing.T) {
	var got *auth.Principal
	h := Auth(newIssuer(t), principalEcho(t, &got))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/config", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Nil(t, got)
}

func TestAuth_ValidTokenAttachesPrincipal(t *testing.T) {
	iss := newIssuer(t)
	token, _, err := iss.Issue(auth.Principal{UserID: "user-a_gmail_com", Email: "a@gmail.com"})
	require.NoError(t, err)

	var got *auth.Principal
	h := Auth(iss, principalEcho(t, &got))

	req := httptest.NewRequest(http.MethodPost, "/chat/send", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, got)
	assert.Equal(t, "user-a_gmail_com", got.UserID)
	assert.Equal(t, "a@gmail.com", got.Email)
}

func TestAuth_InvalidTokenRejected(t *testing.T) {
	h := Auth(newIssuer(t), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/chat/send", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	RequestID(h).ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	var env struct {
		Error core.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, core.ErrAuthentication, env.Error.Type)
	assert.NotEmpty(t, env.Error.RequestID)
}

func TestAuth_LiveUpgradeAcceptsQueryToken(t *testing.T) {
	iss := newIssuer(t)
	token, _, err := iss.Issue(auth.Principal{UserID: "user-b_gmail_com", Email: "b@gmail.com"})
	require.NoError(t, err)

	var got *auth.Principal
	h := Auth(iss, principalEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/v1/live?token="+token, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.NotNil(t, got)
	assert.Equal(t, "user-b_gmail_com", got.UserID)
}

func TestAuth_QueryTokenIgnoredOutsideUpgrade(t *testing.T) {
	var got *auth.Principal
	h := Auth(newIssuer(t), principalEcho(t, &got))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/config?token=garbage", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Nil(t, got)
}

func TestBodyLimit_RejectsOversizedBody(t *testing.T) {
	h := BodyLimit(4, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 16)
		_, err := r.Body.Read(buf)
		for err == nil {
			_, err = r.Body.Read(buf)
		}
		var maxErr *http.MaxBytesError
		if assert.ErrorAs(t, err, &maxErr) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		}
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat/send", stringsReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestTimeout_SetsDeadlineExceptOnUpgrade(t *testing.T) {
	var hasDeadline bool
	h := Timeout(time.Second, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/chat/history/u1", nil))
	assert.True(t, hasDeadline)

	req := httptest.NewRequest(http.MethodGet, "/v1/live", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, hasDeadline)
}
