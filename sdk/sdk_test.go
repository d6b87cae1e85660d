package resilios

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/vango-go/resilios/pkg/core/chat"
	"github.com/vango-go/resilios/pkg/core/mascot"
	"github.com/vango-go/resilios/pkg/core/types"
	"github.com/vango-go/resilios/pkg/gateway/auth"
	"github.com/vango-go/resilios/pkg/gateway/config"
	"github.com/vango-go/resilios/pkg/gateway/payments"
	"github.com/vango-go/resilios/pkg/gateway/server"
	"github.com/vango-go/resilios/pkg/store"
)

type fakeChat struct {
	mu      sync.Mutex
	reqs    []chat.Request
	limit   int
	reply   chat.Reply
	err     error
	history []types.Message
}

func (f *fakeChat) Send(_ context.Context, req chat.Request) (chat.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return chat.Reply{}, f.err
	}
	return f.reply, nil
}

func (f *fakeChat) History(_ context.Context, _ string, limit int) ([]types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
	return f.history, nil
}

func (f *fakeChat) set(fn func(*fakeChat)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeChat) last() chat.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		return chat.Request{}
	}
	return f.reqs[len(f.reqs)-1]
}

type fakeStore struct{}

func (fakeStore) Ping(context.Context) error { return nil }

func (fakeStore) Entitlement(_ context.Context, userID string) (store.Entitlement, error) {
	return store.Entitlement{UserID: userID, IsPremium: userID == "paid"}, nil
}

type fakeOrders struct{}

func (fakeOrders) CreateOrder(_ context.Context, userID string) (payments.Order, error) {
	return payments.Order{
		ID:     "ORDER-1",
		Status: "CREATED",
		Links:  []payments.OrderLink{{Href: "https://paypal.example/approve/ORDER-1", Rel: "approve"}},
	}, nil
}

func (fakeOrders) CaptureOrder(_ context.Context, orderID, _ string) (payments.Order, error) {
	return payments.Order{ID: orderID, Status: "COMPLETED"}, nil
}

type gateway struct {
	srv    *server.Server
	http   *httptest.Server
	chat   *fakeChat
	issuer *auth.Issuer
}

func newGateway(t *testing.T, mutate func(*config.Config, *server.Deps)) *gateway {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.MediaDir = t.TempDir()
	cfg.LimitRPS = 1000
	cfg.LimitBurst = 1000
	cfg.LiveConnectDelay = 20 * time.Millisecond

	issuer, err := auth.NewIssuer("sdk-test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	fc := &fakeChat{reply: chat.Reply{Text: "hi there"}}
	deps := server.Deps{
		Chat:   fc,
		Store:  fakeStore{},
		PayPal: fakeOrders{},
		Login:  auth.Authenticator{Issuer: issuer},
		Tokens: issuer,
		Mascots: mascot.New(fstest.MapFS{
			"a.svg": {Data: []byte("<svg/>")},
			"b.png": {Data: []byte("\x89PNG\r\n\x1a\n")},
		}),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	srv := server.New(cfg, deps, slog.New(slog.NewTextHandler(io.Discard, nil)))
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &gateway{srv: srv, http: hs, chat: fc, issuer: issuer}
}

func (g *gateway) client(opts ...ClientOption) *Client {
	return NewClient(append([]ClientOption{WithBaseURL(g.http.URL)}, opts...)...)
}
