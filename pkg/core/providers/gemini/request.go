package gemini

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/resilios/pkg/core/chat"
	"github.com/vango-go/resilios/pkg/core/types"
)

// buildContents converts stored history and the new turn into Gemini contents.
// Adjacent messages of the same role are merged, since Gemini expects
// alternating turns.
func buildContents(history []types.Message, req chat.Request) ([]*genai.Content, error) {
	var contents []*genai.Content

	appendParts := func(role genai.Role, parts ...*genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == string(role) {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}

	for _, msg := range history {
		if msg.IsLiveTranscription || strings.TrimSpace(msg.Text) == "" {
			continue
		}
		appendParts(roleFor(msg.Role), genai.NewPartFromText(msg.Text))
	}

	var parts []*genai.Part
	if req.Attachment != nil {
		raw, err := req.Attachment.Decode()
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(raw, req.Attachment.MIMEType))
	}
	if req.Text != "" {
		parts = append(parts, genai.NewPartFromText(req.Text))
	}
	appendParts(genai.RoleUser, parts...)

	return contents, nil
}

func roleFor(r types.Role) genai.Role {
	if r == types.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// buildConfig selects tools for the request. Grounding tools cannot be
// combined with function declarations, so the sticker tool is only offered
// when search and maps are both off.
func (p *Provider) buildConfig(req chat.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if p.systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.systemPrompt, genai.RoleUser)
	}

	switch {
	case req.UseSearch || req.Location != nil:
		tool := &genai.Tool{}
		if req.UseSearch {
			tool.GoogleSearch = &genai.GoogleSearch{}
		}
		if req.Location != nil {
			tool.GoogleMaps = &genai.GoogleMaps{}
			cfg.ToolConfig = &genai.ToolConfig{
				RetrievalConfig: &genai.RetrievalConfig{
					LatLng: &genai.LatLng{
						Latitude:  genai.Ptr(req.Location.Latitude),
						Longitude: genai.Ptr(req.Location.Longitude),
					},
				},
			}
		}
		cfg.Tools = []*genai.Tool{tool}
	default:
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{stickerDeclaration()}}}
	}

	if req.DeepThinking {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(p.thinkingBudget)}
	}
	return cfg
}

func stickerDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        StickerFunction,
		Description: "Displays a sticker in the chat to visually express an emotion or concept.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"stickerName": {
					Type:        genai.TypeString,
					Description: "The name of the sticker to display.",
					Enum:        types.StickerNames(),
				},
			},
			Required: []string{"stickerName"},
		},
	}
}
