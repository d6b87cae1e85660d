package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/vango-go/resilios/pkg/store"
)

const eventCheckoutCompleted = "checkout.session.completed"

type checkoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeConfig configures Stripe checkout.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PublicOrigin  string
	Plan          Plan
}

// Stripe creates subscription checkouts and applies webhook events.
type Stripe struct {
	cfg      StripeConfig
	sessions checkoutSessions
	grants   Granter
	logger   *slog.Logger
}

func NewStripe(cfg StripeConfig, grants Granter, logger *slog.Logger) *Stripe {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stripe{cfg: cfg, grants: grants, logger: logger}
	if cfg.SecretKey != "" {
		s.sessions = &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey}
	}
	return s
}

// Configured reports whether checkouts can be created.
func (s *Stripe) Configured() bool {
	return s != nil && s.sessions != nil
}

// CreateCheckout returns the hosted checkout URL for a monthly subscription
// with the configured trial.
func (s *Stripe) CreateCheckout(ctx context.Context, userID string) (string, error) {
	if !s.Configured() {
		return "", fmt.Errorf("stripe: %w", ErrNotConfigured)
	}
	origin := strings.TrimRight(s.cfg.PublicOrigin, "/")

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(string(stripe.CurrencyUSD)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(ProductName),
				},
				UnitAmount: stripe.Int64(s.cfg.Plan.PriceCents),
				Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(origin + "/?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(origin + "/?canceled=true"),
		ClientReferenceID: stripe.String(userID),
	}
	if s.cfg.Plan.TrialDays > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(int64(s.cfg.Plan.TrialDays)),
		}
	}
	params.AddMetadata("user_id", userID)
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())

	sess, err := s.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// WebhookResult reports what a webhook event did.
type WebhookResult struct {
	Handled bool   `json:"handled"`
	Message string `json:"message"`
}

// HandleWebhook verifies payload against the Stripe-Signature header when a
// webhook secret is configured, then applies checkout completions. Without a
// secret the payload is trusted as-is.
func (s *Stripe) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	var event stripe.Event
	if s.cfg.WebhookSecret != "" {
		ev, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			s.logger.Warn("stripe webhook verification failed", "error", err)
			return WebhookResult{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
		event = ev
	} else if err := json.Unmarshal(payload, &event); err != nil {
		return WebhookResult{}, fmt.Errorf("%w: invalid payload", ErrInvalidSignature)
	}

	s.logger.Info("stripe event", "type", event.Type, "id", event.ID)
	if string(event.Type) != eventCheckoutCompleted {
		return WebhookResult{Message: "Unhandled event type: " + string(event.Type)}, nil
	}
	if event.Data == nil {
		return WebhookResult{Message: "No session in event"}, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return WebhookResult{}, fmt.Errorf("decode checkout session: %w", err)
	}
	userID := sess.Metadata["user_id"]
	if userID == "" {
		userID = sess.ClientReferenceID
	}
	if userID == "" {
		return WebhookResult{Message: "No user_id in session metadata"}, nil
	}
	if s.grants == nil {
		return WebhookResult{}, errors.New("stripe: no entitlement store")
	}
	if err := s.grants.SetPremium(ctx, userID, store.Grant{Premium: true, Provider: "stripe", Ref: sess.ID}); err != nil {
		return WebhookResult{}, fmt.Errorf("grant premium: %w", err)
	}
	return WebhookResult{Handled: true, Message: fmt.Sprintf("User %s marked premium via Stripe", userID)}, nil
}
