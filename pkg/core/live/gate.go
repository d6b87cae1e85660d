package live

import (
	"context"

	"github.com/vango-go/resilios/pkg/core/types"
)

// Gate decides whether a user may start a live session. It must be pure.
type Gate interface {
	CanStart(user types.User) bool
}

// GateFunc adapts a function to Gate.
type GateFunc func(user types.User) bool

func (f GateFunc) CanStart(user types.User) bool { return f(user) }

// PremiumGate admits premium users only.
type PremiumGate struct{}

func (PremiumGate) CanStart(user types.User) bool { return user.IsPremium }

// Upseller is invoked once for every denied start attempt.
type Upseller interface {
	OfferUpgrade(ctx context.Context, user types.User) error
}

// UpsellerFunc adapts a function to Upseller.
type UpsellerFunc func(ctx context.Context, user types.User) error

func (f UpsellerFunc) OfferUpgrade(ctx context.Context, user types.User) error {
	return f(ctx, user)
}
