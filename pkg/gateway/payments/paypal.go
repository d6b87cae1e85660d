package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vango-go/resilios/pkg/store"
)

// PayPal order statuses that count as paid.
const (
	OrderCompleted                      = "COMPLETED"
	OrderCompletedWithPendingSettlement = "COMPLETED_WITH_PENDING_SETTLEMENT"
)

// PayPalConfig configures the PayPal REST client.
type PayPalConfig struct {
	ClientID     string
	Secret       string
	BaseURL      string
	PublicOrigin string
	Plan         Plan
	// Period is how long a captured order grants premium.
	Period  time.Duration
	Timeout time.Duration
}

// PayPal creates and captures orders against the PayPal Orders v2 API.
type PayPal struct {
	cfg    PayPalConfig
	client *resty.Client
	grants Granter
	logger *slog.Logger
	now    func() time.Time
}

func NewPayPal(cfg PayPalConfig, grants Granter, logger *slog.Logger) *PayPal {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Period <= 0 {
		cfg.Period = 30 * 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &PayPal{cfg: cfg, client: client, grants: grants, logger: logger, now: time.Now}
}

// Configured reports whether client credentials are present.
func (p *PayPal) Configured() bool {
	return p != nil && p.cfg.ClientID != "" && p.cfg.Secret != ""
}

// Order is the subset of a PayPal order the client needs.
type Order struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Links  []OrderLink `json:"links,omitempty"`
}

type OrderLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// ApproveURL returns the buyer approval link, if any.
func (o Order) ApproveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Desc    string `json:"error_description"`
}

func (e apiError) String() string {
	switch {
	case e.Message != "":
		return e.Name + ": " + e.Message
	case e.Desc != "":
		return e.Error + ": " + e.Desc
	default:
		return e.Name + e.Error
	}
}

func (p *PayPal) token(ctx context.Context) (string, error) {
	var (
		out    tokenResponse
		apiErr apiError
	)
	resp, err := p.client.R().
		SetContext(ctx).
		SetBasicAuth(p.cfg.ClientID, p.cfg.Secret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/oauth2/token")
	if err != nil {
		return "", fmt.Errorf("paypal token: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("paypal token: status %d: %s", resp.StatusCode(), apiErr)
	}
	if out.AccessToken == "" {
		return "", errors.New("paypal token: empty access token")
	}
	return out.AccessToken, nil
}

// CreateOrder creates a CAPTURE order for one plan period on behalf of userID.
func (p *PayPal) CreateOrder(ctx context.Context, userID string) (Order, error) {
	if !p.Configured() {
		return Order{}, fmt.Errorf("paypal: %w", ErrNotConfigured)
	}
	tok, err := p.token(ctx)
	if err != nil {
		return Order{}, err
	}
	origin := strings.TrimRight(p.cfg.PublicOrigin, "/")

	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"custom_id":   userID,
			"description": ProductName,
			"amount": map[string]string{
				"currency_code": "USD",
				"value":         p.cfg.Plan.Price(),
			},
		}},
		"application_context": map[string]string{
			"return_url": origin + "/paypal-success",
			"cancel_url": origin + "/paypal-cancel",
		},
	}

	var (
		out    Order
		apiErr apiError
	)
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v2/checkout/orders")
	if err != nil {
		return Order{}, fmt.Errorf("paypal create order: %w", err)
	}
	if resp.IsError() {
		return Order{}, fmt.Errorf("paypal create order: status %d: %s", resp.StatusCode(), apiErr)
	}
	return out, nil
}

// CaptureOrder captures orderID and, when the capture completed, grants
// userID premium for one period.
func (p *PayPal) CaptureOrder(ctx context.Context, orderID, userID string) (Order, error) {
	if !p.Configured() {
		return Order{}, fmt.Errorf("paypal: %w", ErrNotConfigured)
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, errors.New("paypal capture: order id is required")
	}
	tok, err := p.token(ctx)
	if err != nil {
		return Order{}, err
	}

	var (
		out    Order
		apiErr apiError
	)
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetHeader("Content-Type", "application/json").
		SetBody("{}").
		SetResult(&out).
		SetError(&apiErr).
		Post("/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture")
	if err != nil {
		return Order{}, fmt.Errorf("paypal capture: %w", err)
	}
	if resp.IsError() {
		return Order{}, fmt.Errorf("paypal capture: status %d: %s", resp.StatusCode(), apiErr)
	}

	switch strings.ToUpper(out.Status) {
	case OrderCompleted, OrderCompletedWithPendingSettlement:
	default:
		return out, fmt.Errorf("%w: status %q", ErrNotCompleted, out.Status)
	}
	if userID == "" || p.grants == nil {
		return out, nil
	}
	expires := p.now().Add(p.cfg.Period)
	if err := p.grants.SetPremium(ctx, userID, store.Grant{
		Premium:  true,
		Expires:  &expires,
		Provider: "paypal",
		Ref:      out.ID,
	}); err != nil {
		return out, fmt.Errorf("grant premium: %w", err)
	}
	p.logger.Info("paypal order captured", "user_id", userID, "order_id", out.ID, "status", out.Status)
	return out, nil
}
