package handlers

import (
	"net/http"

	"github.com/vango-go/resilios/pkg/gateway/config"
	"github.com/vango-go/resilios/pkg/gateway/payments"
)

type pricing struct {
	MonthlyPrice          float64 `json:"monthlyPrice"`
	MonthlyPriceFormatted string  `json:"monthlyPriceFormatted"`
	TrialDays             int     `json:"trialDays"`
	FreeChatsPerDay       int     `json:"freeChatsPerDay"`
}

type publicConfig struct {
	PayPalClientID string  `json:"paypalClientId"`
	PublicOrigin   string  `json:"publicOrigin"`
	Pricing        pricing `json:"pricing"`
	HasGeminiKey   bool    `json:"hasGeminiKey"`
	HasStripe      bool    `json:"hasStripe"`
	HasPayPal      bool    `json:"hasPayPal"`
}

// PublicConfigHandler exposes the non-secret settings the web client needs.
type PublicConfigHandler struct {
	Config config.Config
}

func (h PublicConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	plan := payments.Plan{PriceCents: h.Config.MonthlyPriceCents, TrialDays: h.Config.TrialDays}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, publicConfig{
		PayPalClientID: h.Config.PayPalClientID,
		PublicOrigin:   h.Config.PublicOrigin,
		Pricing: pricing{
			MonthlyPrice:          h.Config.MonthlyPrice(),
			MonthlyPriceFormatted: plan.Formatted(),
			TrialDays:             h.Config.TrialDays,
			FreeChatsPerDay:       h.Config.FreeChatsPerDay,
		},
		HasGeminiKey: h.Config.HasGemini(),
		HasStripe:    h.Config.HasStripe(),
		HasPayPal:    h.Config.HasPayPal(),
	})
}
