// Package resilios is the Go client for the Resilios gateway.
//
// The HTTP services mirror the gateway routes one to one. ChatService
// implements chat.Transport, so a *Client can back a chat.Composer directly.
package resilios

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

const defaultBaseURL = "http://localhost:8000"

// Client is the main entry point for the SDK.
type Client struct {
	Chat     *ChatService
	Account  *AccountService
	Payments *PaymentsService
	Mascots  *MascotService
	Live     *LiveService

	baseURL    string
	userID     string
	httpClient *http.Client
	logger     *slog.Logger

	tokenMu sync.RWMutex
	token   string
}

// NewClient creates a client for the gateway at WithBaseURL, or
// http://localhost:8000 when none is given.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: newDefaultHTTPClient(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = newDefaultHTTPClient()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	c.Chat = &ChatService{client: c}
	c.Account = &AccountService{client: c}
	c.Payments = &PaymentsService{client: c}
	c.Mascots = &MascotService{client: c}
	c.Live = &LiveService{client: c}
	return c
}

// UserID is the default user for calls that do not name one.
func (c *Client) UserID() string {
	return c.userID
}

// Token returns the bearer token currently in use.
func (c *Client) Token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token. Login calls it on success.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = strings.TrimSpace(token)
	c.tokenMu.Unlock()
}

func (c *Client) resolveUser(userID string) string {
	if userID = strings.TrimSpace(userID); userID != "" {
		return userID
	}
	return c.userID
}
