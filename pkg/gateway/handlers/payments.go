package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/gateway/payments"
)

// maxWebhookBytes bounds a Stripe event payload.
const maxWebhookBytes = 1 << 16

// CheckoutCreator starts a hosted subscription checkout. *payments.Stripe implements it.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, userID string) (string, error)
}

// WebhookProcessor applies a provider event. *payments.Stripe implements it.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (payments.WebhookResult, error)
}

// OrderProcessor runs one-off PayPal orders. *payments.PayPal implements it.
type OrderProcessor interface {
	CreateOrder(ctx context.Context, userID string) (payments.Order, error)
	CaptureOrder(ctx context.Context, orderID, userID string) (payments.Order, error)
}

type userBody struct {
	UserID string `json:"user_id" validate:"max=256"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

type CheckoutHandler struct {
	Checkout CheckoutCreator
	Logger   *slog.Logger
}

func (h CheckoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body userBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	userID, err := resolveUser(r, body.UserID)
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	url, err := h.Checkout.CreateCheckout(r.Context(), userID)
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{URL: url})
}

type StripeWebhookHandler struct {
	Webhooks WebhookProcessor
	Logger   *slog.Logger
}

func (h StripeWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeErr(w, r, h.Logger, core.NewInvalidRequestError("failed to read request body"))
		return
	}
	res, err := h.Webhooks.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		loggerOr(h.Logger).Warn("stripe webhook rejected", "error", err)
		writeErr(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type paypalCreateBody struct {
	UserID string `json:"user_id" validate:"max=256"`
	// Amount is accepted for older clients and ignored; the price is server-side.
	Amount string `json:"amount,omitempty"`
}

type paypalOrderResponse struct {
	payments.Order
	ApproveURL string `json:"approve_url,omitempty"`
}

type PayPalCreateOrderHandler struct {
	Orders OrderProcessor
	Logger *slog.Logger
}

func (h PayPalCreateOrderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body paypalCreateBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	userID, err := resolveUser(r, body.UserID)
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	order, err := h.Orders.CreateOrder(r.Context(), userID)
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, paypalOrderResponse{Order: order, ApproveURL: order.ApproveURL()})
}

type paypalCaptureBody struct {
	OrderID string `json:"order_id" validate:"required,max=64"`
	UserID  string `json:"user_id" validate:"max=256"`
}

type PayPalCaptureOrderHandler struct {
	Orders OrderProcessor
	Logger *slog.Logger
}

// ServeHTTP captures an approved order. The user id is optional here; without
// one the capture succeeds but grants nothing.
func (h PayPalCaptureOrderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body paypalCaptureBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	userID := body.UserID
	if body.UserID != "" || hasPrincipal(r) {
		var err error
		if userID, err = resolveUser(r, body.UserID); err != nil {
			writeErr(w, r, h.Logger, err)
			return
		}
	}
	order, err := h.Orders.CaptureOrder(r.Context(), body.OrderID, userID)
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, paypalOrderResponse{Order: order})
}
