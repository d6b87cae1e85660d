package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vango-go/resilios/pkg/store"
)

// EntitlementReader loads premium status. *store.Store implements it.
type EntitlementReader interface {
	Entitlement(ctx context.Context, userID string) (store.Entitlement, error)
}

type PremiumHandler struct {
	Entitlements EntitlementReader
	Logger       *slog.Logger
}

func (h PremiumHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := resolveUser(r, r.PathValue("user_id"))
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	ent, err := h.Entitlements.Entitlement(r.Context(), userID)
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}
