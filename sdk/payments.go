package resilios

import (
	"context"
	"net/http"
	"strings"

	"github.com/vango-go/resilios/pkg/core"
)

// PaymentsService starts Stripe checkouts and PayPal orders.
type PaymentsService struct {
	client *Client
}

// Order is a PayPal order as returned by the gateway.
type Order struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Links      []OrderLink `json:"links,omitempty"`
	ApproveURL string      `json:"approve_url,omitempty"`
}

type OrderLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type userBody struct {
	UserID string `json:"user_id,omitempty"`
}

// CreateCheckout returns the Stripe checkout URL for the monthly plan.
func (s *PaymentsService) CreateCheckout(ctx context.Context, userID string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	body := userBody{UserID: s.client.resolveUser(userID)}
	if err := s.client.doJSON(ctx, http.MethodPost, "/create-checkout-session", nil, body, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// CreatePayPalOrder opens an order for the monthly plan. The buyer
// approves it at Order.ApproveURL.
func (s *PaymentsService) CreatePayPalOrder(ctx context.Context, userID string) (Order, error) {
	var order Order
	body := userBody{UserID: s.client.resolveUser(userID)}
	if err := s.client.doJSON(ctx, http.MethodPost, "/paypal/create-order", nil, body, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

// CapturePayPalOrder captures an approved order and grants premium.
func (s *PaymentsService) CapturePayPalOrder(ctx context.Context, orderID, userID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, core.NewInvalidRequestErrorWithParam("order id is required", "order_id")
	}
	body := struct {
		OrderID string `json:"order_id"`
		UserID  string `json:"user_id,omitempty"`
	}{OrderID: orderID, UserID: s.client.resolveUser(userID)}

	var order Order
	if err := s.client.doJSON(ctx, http.MethodPost, "/paypal/capture-order", nil, body, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}
