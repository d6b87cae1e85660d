package resilios

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/vango-go/resilios/pkg/core"
)

// AccountService covers sign-in, premium status and public settings.
type AccountService struct {
	client *Client
}

// Session is a signed-in user.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
}

// Entitlement is a user's premium status.
type Entitlement struct {
	UserID    string     `json:"user_id"`
	IsPremium bool       `json:"is_premium"`
	Expires   *time.Time `json:"premium_expires,omitempty"`
	Provider  string     `json:"provider,omitempty"`
}

type Pricing struct {
	MonthlyPrice          float64 `json:"monthlyPrice"`
	MonthlyPriceFormatted string  `json:"monthlyPriceFormatted"`
	TrialDays             int     `json:"trialDays"`
	FreeChatsPerDay       int     `json:"freeChatsPerDay"`
}

// PublicConfig is the gateway's non-secret configuration.
type PublicConfig struct {
	PayPalClientID string  `json:"paypalClientId"`
	PublicOrigin   string  `json:"publicOrigin"`
	Pricing        Pricing `json:"pricing"`
	HasGeminiKey   bool    `json:"hasGeminiKey"`
	HasStripe      bool    `json:"hasStripe"`
	HasPayPal      bool    `json:"hasPayPal"`
}

// Login signs in and, on success, makes the session token the client's
// bearer token.
func (s *AccountService) Login(ctx context.Context, email, password string) (Session, error) {
	body := map[string]string{"email": email, "password": password}

	var sess Session
	if err := s.client.doJSON(ctx, http.MethodPost, "/auth/login", nil, body, &sess); err != nil {
		return Session{}, err
	}
	s.client.SetToken(sess.Token)
	return sess, nil
}

// Premium reports the user's premium status.
func (s *AccountService) Premium(ctx context.Context, userID string) (Entitlement, error) {
	userID = s.client.resolveUser(userID)
	if userID == "" {
		return Entitlement{}, core.NewInvalidRequestErrorWithParam("user id is required", "user_id")
	}
	var ent Entitlement
	if err := s.client.doJSON(ctx, http.MethodGet, "/user/"+url.PathEscape(userID)+"/premium", nil, nil, &ent); err != nil {
		return Entitlement{}, err
	}
	return ent, nil
}

// Config fetches the public configuration.
func (s *AccountService) Config(ctx context.Context) (PublicConfig, error) {
	var cfg PublicConfig
	if err := s.client.doJSON(ctx, http.MethodGet, "/config", nil, nil, &cfg); err != nil {
		return PublicConfig{}, err
	}
	return cfg, nil
}
