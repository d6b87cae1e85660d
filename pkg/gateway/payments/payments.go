// Package payments grants premium access through Stripe subscriptions and
// PayPal one-off orders.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/vango-go/resilios/pkg/store"
)

var (
	// ErrNotConfigured is returned when the provider has no credentials.
	ErrNotConfigured = errors.New("payments: provider not configured")
	// ErrNotCompleted is returned when a provider reports a payment that did not go through.
	ErrNotCompleted = errors.New("payments: payment not completed")
	// ErrInvalidSignature is returned for webhook payloads that fail verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
)

// ProductName is shown on the checkout page.
const ProductName = "Live Avatar — Premium Access"

// Plan is the premium subscription offer.
type Plan struct {
	PriceCents int64
	TrialDays  int
}

// Price formats the plan price in dollars with two decimals.
func (p Plan) Price() string {
	return fmt.Sprintf("%d.%02d", p.PriceCents/100, p.PriceCents%100)
}

// Formatted is the price label shown to users, e.g. "$4.99/month".
func (p Plan) Formatted() string {
	return "$" + p.Price() + "/month"
}

// Granter records premium grants. *store.Store implements it.
type Granter interface {
	SetPremium(ctx context.Context, userID string, g store.Grant) error
}
