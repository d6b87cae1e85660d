package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/core/chat"
	"github.com/vango-go/resilios/pkg/core/types"
)

const maxHistoryLimit = 1000

// ChatService is the server side of a conversation. *chat.Service implements it.
type ChatService interface {
	Send(ctx context.Context, req chat.Request) (chat.Reply, error)
	History(ctx context.Context, userID string, limit int) ([]types.Message, error)
}

type chatSendRequest struct {
	UserID       string          `json:"user_id" validate:"max=256"`
	Message      string          `json:"message" validate:"max=32000"`
	SessionID    string          `json:"session_id,omitempty" validate:"max=256"`
	Attachment   *attachmentBody `json:"attachment,omitempty"`
	UseSearch    bool            `json:"use_search,omitempty"`
	DeepThinking bool            `json:"deep_thinking,omitempty"`
	Location     *locationBody   `json:"location,omitempty"`
}

type attachmentBody struct {
	Data     string `json:"data" validate:"required,base64"`
	MIMEType string `json:"mime_type" validate:"required"`
}

type locationBody struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

type ChatSendHandler struct {
	Service            ChatService
	MaxAttachmentBytes int64
	Logger             *slog.Logger
}

func (h ChatSendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body chatSendRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	userID, err := resolveUser(r, body.UserID)
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}

	req := chat.Request{
		UserID:       userID,
		Text:         body.Message,
		UseSearch:    body.UseSearch,
		DeepThinking: body.DeepThinking,
	}
	if body.Attachment != nil {
		att := types.Attachment{Data: body.Attachment.Data, MIMEType: strings.TrimSpace(body.Attachment.MIMEType)}
		if h.MaxAttachmentBytes > 0 && decodedLen(att.Data) > h.MaxAttachmentBytes {
			writeErr(w, r, h.Logger, chat.ErrAttachmentTooLarge)
			return
		}
		req.Attachment = &att
	}
	if body.Location != nil {
		req.Location = &types.Location{Latitude: body.Location.Latitude, Longitude: body.Location.Longitude}
	}

	reply, err := h.Service.Send(r.Context(), req)
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// decodedLen is the byte length of a padded standard base64 string.
func decodedLen(data string) int64 {
	n := int64(len(data)) / 4 * 3
	switch {
	case strings.HasSuffix(data, "=="):
		n -= 2
	case strings.HasSuffix(data, "="):
		n--
	}
	return n
}

type historyResponse struct {
	Count    int             `json:"count"`
	Messages []types.Message `json:"messages"`
}

type ChatHistoryHandler struct {
	Service ChatService
	Logger  *slog.Logger
}

func (h ChatHistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := resolveUser(r, r.PathValue("user_id"))
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}

	limit := chat.DefaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeErr(w, r, h.Logger, core.NewInvalidRequestErrorWithParam("limit must be a positive integer", "limit"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	msgs, err := h.Service.History(r.Context(), userID, limit)
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	if msgs == nil {
		msgs = []types.Message{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Count: len(msgs), Messages: msgs})
}
