package gemini

import "net/http"

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the model name.
// Default: gemini-2.5-flash
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithSystemPrompt replaces the companion persona prompt.
func WithSystemPrompt(prompt string) Option {
	return func(p *Provider) {
		p.systemPrompt = prompt
	}
}

// WithThinkingBudget sets the token budget used when deep thinking is on.
func WithThinkingBudget(budget int32) Option {
	return func(p *Provider) {
		if budget > 0 {
			p.thinkingBudget = budget
		}
	}
}

// WithHTTPClient sets the HTTP client for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

func withGenerator(g generator) Option {
	return func(p *Provider) {
		p.models = g
	}
}
