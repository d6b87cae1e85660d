// Package gemini implements the chat backend on the Google Gemini API
// through the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/vango-go/resilios/pkg/core/chat"
	"github.com/vango-go/resilios/pkg/core/types"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-flash"

	// DefaultThinkingBudget is the token budget for deep-thinking requests.
	DefaultThinkingBudget = 8192

	// StickerFunction is the tool the model calls to show a sticker.
	StickerFunction = "displaySticker"
)

// generator is the slice of *genai.Models the provider uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider is a chat.Backend backed by Gemini.
type Provider struct {
	models         generator
	model          string
	systemPrompt   string
	thinkingBudget int32
	httpClient     *http.Client
}

var _ chat.Backend = (*Provider)(nil)

// New creates a provider authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{
		model:          DefaultModel,
		systemPrompt:   SystemPrompt,
		thinkingBudget: DefaultThinkingBudget,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.models == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: p.httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		p.models = client.Models
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	return p.model
}

// Generate sends history plus req to the model and normalizes the reply.
func (p *Provider) Generate(ctx context.Context, history []types.Message, req chat.Request) (chat.Reply, error) {
	contents, err := buildContents(history, req)
	if err != nil {
		return chat.Reply{}, err
	}

	resp, err := p.models.GenerateContent(ctx, p.model, contents, p.buildConfig(req))
	if err != nil {
		return chat.Reply{}, mapError(err)
	}
	return parseResponse(resp)
}
