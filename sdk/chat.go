package resilios

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/core/chat"
	"github.com/vango-go/resilios/pkg/core/types"
)

// ChatService talks to /chat.
type ChatService struct {
	client *Client
}

var _ chat.Transport = (*ChatService)(nil)

// Send posts one message. An empty req.UserID falls back to WithUserID.
func (s *ChatService) Send(ctx context.Context, req chat.Request) (chat.Reply, error) {
	req.UserID = s.client.resolveUser(req.UserID)

	var reply chat.Reply
	if err := s.client.doJSON(ctx, http.MethodPost, "/chat/send", nil, req, &reply); err != nil {
		return chat.Reply{}, err
	}
	return reply, nil
}

type historyResponse struct {
	Count    int             `json:"count"`
	Messages []types.Message `json:"messages"`
}

// History returns the user's most recent messages in chronological order.
// A limit <= 0 uses the gateway default.
func (s *ChatService) History(ctx context.Context, userID string, limit int) ([]types.Message, error) {
	userID = s.client.resolveUser(userID)
	if userID == "" {
		return nil, core.NewInvalidRequestErrorWithParam("user id is required", "user_id")
	}
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}

	var out historyResponse
	if err := s.client.doJSON(ctx, http.MethodGet, "/chat/history/"+url.PathEscape(userID), query, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}
