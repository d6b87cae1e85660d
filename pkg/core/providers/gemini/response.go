package gemini

import (
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/resilios/pkg/core/chat"
	"github.com/vango-go/resilios/pkg/core/types"
)

// parseResponse extracts text, the sticker directive and grounding citations.
func parseResponse(resp *genai.GenerateContentResponse) (chat.Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return chat.Reply{}, &Error{
				Type:    ErrInvalidRequest,
				Message: "prompt blocked: " + string(resp.PromptFeedback.BlockReason),
			}
		}
		return chat.Reply{}, &Error{Type: ErrProvider, Message: "empty response"}
	}

	reply := chat.Reply{Text: strings.TrimSpace(resp.Text())}

	for _, call := range resp.FunctionCalls() {
		if call == nil || call.Name != StickerFunction {
			continue
		}
		name, _ := call.Args["stickerName"].(string)
		if _, ok := types.LookupSticker(name); ok {
			reply.Sticker = name
			break
		}
	}

	if gm := resp.Candidates[0].GroundingMetadata; gm != nil {
		for _, gc := range gm.GroundingChunks {
			if chunk, ok := convertChunk(gc); ok {
				reply.GroundingChunks = append(reply.GroundingChunks, chunk)
			}
		}
	}
	return reply, nil
}

func convertChunk(gc *genai.GroundingChunk) (types.GroundingChunk, bool) {
	if gc == nil {
		return types.GroundingChunk{}, false
	}
	var out types.GroundingChunk
	if gc.Web != nil && gc.Web.URI != "" {
		out.Web = &types.GroundingSource{URI: gc.Web.URI, Title: gc.Web.Title}
	}
	if gc.Maps != nil && gc.Maps.URI != "" {
		out.Maps = &types.GroundingSource{URI: gc.Maps.URI, Title: gc.Maps.Title}
	}
	return out, out.Web != nil || out.Maps != nil
}
