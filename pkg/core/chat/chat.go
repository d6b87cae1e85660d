// Package chat implements the text conversation with the companion: the
// client-side Composer and the server-side Service that enforces quotas
// and safety before calling the model.
package chat

import (
	"context"
	"errors"

	"github.com/vango-go/resilios/pkg/core/types"
)

var (
	// ErrEmptyMessage is returned for a send with no text and no attachment.
	ErrEmptyMessage = errors.New("chat: empty message")
	// ErrSendInFlight is returned while a previous send for the same user
	// has not completed.
	ErrSendInFlight = errors.New("chat: send already in flight")
	// ErrQuotaExceeded is returned when a free user used up the daily quota.
	ErrQuotaExceeded = errors.New("chat: free daily quota exceeded")
	// ErrBlocked is returned when the safety filter rejects a message.
	ErrBlocked = errors.New("chat: message blocked by safety policy")
	// ErrBackend wraps model failures.
	ErrBackend = errors.New("chat: model call failed")
)

// Request is one user turn.
type Request struct {
	UserID       string            `json:"user_id,omitempty"`
	Text         string            `json:"message"`
	Attachment   *types.Attachment `json:"attachment,omitempty"`
	UseSearch    bool              `json:"use_search,omitempty"`
	DeepThinking bool              `json:"deep_thinking,omitempty"`
	Location     *types.Location   `json:"location,omitempty"`
}

// Reply is the model's answer to a Request.
type Reply struct {
	Text            string                 `json:"reply"`
	GroundingChunks []types.GroundingChunk `json:"grounding_chunks,omitempty"`
	Sticker         string                 `json:"sticker,omitempty"`
	Crisis          bool                   `json:"crisis,omitempty"`
}

// Transport delivers a Request to the backend. The sdk client implements it.
type Transport interface {
	Send(ctx context.Context, req Request) (Reply, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request) (Reply, error)

func (f TransportFunc) Send(ctx context.Context, req Request) (Reply, error) { return f(ctx, req) }

// Notifier surfaces transient failures to the user.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// Locator resolves the user's current position.
type Locator interface {
	Locate(ctx context.Context) (types.Location, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (types.Location, error)

func (f LocatorFunc) Locate(ctx context.Context) (types.Location, error) { return f(ctx) }
