package resilios

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/core/chat"
	"github.com/vango-go/resilios/pkg/core/types"
	"github.com/vango-go/resilios/pkg/gateway/config"
	"github.com/vango-go/resilios/pkg/gateway/server"
)

func TestChatSend_RoundTrip(t *testing.T) {
	g := newGateway(t, nil)
	g.chat.set(func(f *fakeChat) {
		f.reply = chat.Reply{
			Text:            "Here is what I found.",
			Sticker:         "hug",
			GroundingChunks: []types.GroundingChunk{{Web: &types.GroundingSource{URI: "https://example.com", Title: "Example"}}},
		}
	})
	c := g.client(WithUserID("u1"))

	reply, err := c.Chat.Send(context.Background(), chat.Request{
		Text:       "hello",
		UseSearch:  true,
		Attachment: &types.Attachment{Data: "aGVsbG8=", MIMEType: "image/png"},
		Location:   &types.Location{Latitude: 52.5, Longitude: 13.4},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.Text != "Here is what I found." || reply.Sticker != "hug" || len(reply.GroundingChunks) != 1 {
		t.Fatalf("reply=%+v", reply)
	}

	got := g.chat.last()
	if got.UserID != "u1" || got.Text != "hello" || !got.UseSearch {
		t.Fatalf("request=%+v", got)
	}
	if got.Attachment == nil || got.Attachment.MIMEType != "image/png" {
		t.Fatalf("attachment=%+v", got.Attachment)
	}
	if got.Location == nil || got.Location.Latitude != 52.5 {
		t.Fatalf("location=%+v", got.Location)
	}
}

func TestChatSend_ExplicitUserWinsOverDefault(t *testing.T) {
	g := newGateway(t, nil)
	c := g.client(WithUserID("default"))

	if _, err := c.Chat.Send(context.Background(), chat.Request{UserID: "other", Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if got := g.chat.last().UserID; got != "other" {
		t.Fatalf("user_id=%q", got)
	}
}

func TestChatSend_DecodesErrorEnvelope(t *testing.T) {
	g := newGateway(t, nil)
	g.chat.set(func(f *fakeChat) { f.err = chat.ErrQuotaExceeded })
	c := g.client(WithUserID("u1"))

	_, err := c.Chat.Send(context.Background(), chat.Request{Text: "hi"})
	var apiErr *core.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%T %v, want *core.Error", err, err)
	}
	if apiErr.Type != core.ErrPaymentRequired || apiErr.Code != "quota_exceeded" {
		t.Fatalf("err=%+v", apiErr)
	}
	if apiErr.RequestID == "" {
		t.Fatalf("missing request id")
	}
}

func TestChatSend_BackendFailure(t *testing.T) {
	g := newGateway(t, nil)
	g.chat.set(func(f *fakeChat) { f.err = chat.ErrBackend })
	c := g.client(WithUserID("u1"))

	_, err := c.Chat.Send(context.Background(), chat.Request{Text: "hi"})
	var apiErr *core.Error
	if !errors.As(err, &apiErr) || apiErr.Type != core.ErrProvider {
		t.Fatalf("err=%v", err)
	}
}

func TestChat_ComposerOverClient(t *testing.T) {
	g := newGateway(t, nil)
	c := g.client(WithUserID("u1"))

	composer := chat.NewComposer(chat.ComposerOptions{Transport: c.Chat})
	sent, err := composer.Send(context.Background(), "hello")
	if err != nil || !sent {
		t.Fatalf("Send() = %v, %v", sent, err)
	}
	msgs := composer.Messages()
	if len(msgs) != 2 || msgs[1].Role != types.RoleModel || msgs[1].Text != "hi there" {
		t.Fatalf("messages=%+v", msgs)
	}
}

func TestChatHistory(t *testing.T) {
	g := newGateway(t, nil)
	g.chat.set(func(f *fakeChat) {
		f.history = []types.Message{
			{Role: types.RoleUser, Text: "hi", Timestamp: time.Unix(100, 0).UTC()},
			{Role: types.RoleModel, Text: "hello", Timestamp: time.Unix(101, 0).UTC()},
		}
	})
	c := g.client(WithUserID("u1"))

	msgs, err := c.Chat.History(context.Background(), "", 25)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "hi" || msgs[1].Role != types.RoleModel {
		t.Fatalf("messages=%+v", msgs)
	}
	var limit int
	g.chat.set(func(f *fakeChat) { limit = f.limit })
	if limit != 25 {
		t.Fatalf("limit=%d", limit)
	}
}

func TestChatHistory_RequiresUser(t *testing.T) {
	c := NewClient(WithBaseURL("http://127.0.0.1:1"))
	_, err := c.Chat.History(context.Background(), "", 0)
	var apiErr *core.Error
	if !errors.As(err, &apiErr) || apiErr.Param != "user_id" {
		t.Fatalf("err=%v", err)
	}
}

func TestLogin_SetsTokenForLaterCalls(t *testing.T) {
	g := newGateway(t, nil)
	c := g.client(WithUserID("spoofed"))

	sess, err := c.Account.Login(context.Background(), "Jane.Doe@gmail.com", "")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if sess.UserID != "user-jane_doe_gmail_com" || sess.Token == "" {
		t.Fatalf("session=%+v", sess)
	}
	if c.Token() != sess.Token {
		t.Fatalf("token not stored")
	}

	if _, err := c.Chat.Send(context.Background(), chat.Request{Text: "hi"}); !isPermissionError(err) {
		t.Fatalf("spoofed user with token: err=%v, want permission error", err)
	}
	if _, err := c.Chat.Send(context.Background(), chat.Request{UserID: sess.UserID, Text: "hi"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := g.chat.last().UserID; got != sess.UserID {
		t.Fatalf("user_id=%q", got)
	}
}

func isPermissionError(err error) bool {
	var apiErr *core.Error
	return errors.As(err, &apiErr) && apiErr.Type == core.ErrPermission
}

func TestLogin_RejectsNonGmail(t *testing.T) {
	g := newGateway(t, nil)
	c := g.client()

	_, err := c.Account.Login(context.Background(), "someone@example.com", "pw")
	var apiErr *core.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "gmail_only" {
		t.Fatalf("err=%v", err)
	}
	if c.Token() != "" {
		t.Fatalf("token set after failed login")
	}
}

func TestPremiumAndConfig(t *testing.T) {
	g := newGateway(t, nil)
	c := g.client()

	ent, err := c.Account.Premium(context.Background(), "paid")
	if err != nil {
		t.Fatalf("Premium() error = %v", err)
	}
	if !ent.IsPremium || ent.UserID != "paid" {
		t.Fatalf("entitlement=%+v", ent)
	}

	cfg, err := c.Account.Config(context.Background())
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}
	if cfg.Pricing.MonthlyPriceFormatted != "$4.99/month" || cfg.Pricing.TrialDays != 7 {
		t.Fatalf("config=%+v", cfg)
	}
}

func TestPayments(t *testing.T) {
	g := newGateway(t, nil)
	c := g.client(WithUserID("u1"))

	_, err := c.Payments.CreateCheckout(context.Background(), "")
	var apiErr *core.Error
	if !errors.As(err, &apiErr) || apiErr.Type != core.ErrNotConfigured {
		t.Fatalf("checkout err=%v, want not configured", err)
	}

	order, err := c.Payments.CreatePayPalOrder(context.Background(), "")
	if err != nil {
		t.Fatalf("CreatePayPalOrder() error = %v", err)
	}
	if order.ID != "ORDER-1" || order.ApproveURL != "https://paypal.example/approve/ORDER-1" {
		t.Fatalf("order=%+v", order)
	}

	captured, err := c.Payments.CapturePayPalOrder(context.Background(), order.ID, "")
	if err != nil {
		t.Fatalf("CapturePayPalOrder() error = %v", err)
	}
	if captured.Status != "COMPLETED" {
		t.Fatalf("captured=%+v", captured)
	}

	if _, err := c.Payments.CapturePayPalOrder(context.Background(), " ", ""); err == nil {
		t.Fatalf("expected error for empty order id")
	}
}

func TestMascots(t *testing.T) {
	g := newGateway(t, nil)
	c := g.client()

	files, err := c.Mascots.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 2 || files[0] != "a.svg" {
		t.Fatalf("files=%v", files)
	}

	m, err := c.Mascots.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !strings.HasPrefix(string(m.Data), "\x89PNG") || !strings.HasPrefix(m.ContentType, "image/png") {
		t.Fatalf("mascot content-type=%q len=%d", m.ContentType, len(m.Data))
	}

	if _, err := c.Mascots.Random(context.Background()); err != nil {
		t.Fatalf("Random() error = %v", err)
	}

	_, err = c.Mascots.Get(context.Background(), 9)
	var apiErr *core.Error
	if !errors.As(err, &apiErr) || apiErr.Type != core.ErrNotFound {
		t.Fatalf("err=%v, want not found", err)
	}
}

func TestUnconfiguredChat(t *testing.T) {
	g := newGateway(t, func(_ *config.Config, d *server.Deps) { d.Chat = nil })
	c := g.client(WithUserID("u1"))

	_, err := c.Chat.Send(context.Background(), chat.Request{Text: "hi"})
	var apiErr *core.Error
	if !errors.As(err, &apiErr) || apiErr.Type != core.ErrNotConfigured {
		t.Fatalf("err=%v", err)
	}
}

func TestTransportError(t *testing.T) {
	hs := httptest.NewServer(http.NotFoundHandler())
	base := hs.URL
	hs.Close()

	c := NewClient(WithBaseURL(base), WithUserID("u1"))
	_, err := c.Chat.Send(context.Background(), chat.Request{Text: "hi"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err=%T %v, want *TransportError", err, err)
	}
	if te.Op != http.MethodPost || !strings.HasSuffix(te.URL, "/chat/send") {
		t.Fatalf("transport error=%+v", te)
	}
}

func TestDecodeErrorResponse_NonJSONInfersType(t *testing.T) {
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", "req_proxy")
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	t.Cleanup(hs.Close)

	c := NewClient(WithBaseURL(hs.URL))
	_, err := c.Account.Config(context.Background())
	var apiErr *core.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v", err)
	}
	if apiErr.Type != core.ErrRateLimit || apiErr.RequestID != "req_proxy" {
		t.Fatalf("err=%+v", apiErr)
	}
	if apiErr.RetryAfter == nil || *apiErr.RetryAfter != 7 {
		t.Fatalf("retry_after=%v", apiErr.RetryAfter)
	}
}

func TestEndpoint(t *testing.T) {
	cases := []struct {
		base, path, want string
		wantErr          bool
	}{
		{"http://localhost:8000", "/chat/send", "http://localhost:8000/chat/send", false},
		{"http://localhost:8000/", "chat/send", "http://localhost:8000/chat/send", false},
		{"https://example.com/api/?x=1#frag", "/config", "https://example.com/api/config", false},
		{"https://user:pw@example.com", "/config", "", true},
		{"not a url", "/config", "", true},
		{"", "/config", "", true},
	}
	for _, tc := range cases {
		c := &Client{baseURL: tc.base}
		got, err := c.endpoint(tc.path, nil)
		if (err != nil) != tc.wantErr {
			t.Errorf("endpoint(%q, %q) err=%v", tc.base, tc.path, err)
			continue
		}
		if got != tc.want {
			t.Errorf("endpoint(%q, %q)=%q, want %q", tc.base, tc.path, got, tc.want)
		}
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("wss://user:pw@example.com/v1/live?token=secret")
	if strings.Contains(got, "secret") || strings.Contains(got, "pw") {
		t.Fatalf("redactURL leaked credentials: %q", got)
	}
}
