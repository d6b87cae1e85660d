package types

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Message is one entry of a conversation.
type Message struct {
	ID                  int64            `json:"id,omitempty"`
	Role                Role             `json:"role"`
	Text                string           `json:"text"`
	Timestamp           time.Time        `json:"timestamp"`
	Attachment          *Attachment      `json:"attachment,omitempty"`
	GroundingChunks     []GroundingChunk `json:"grounding_chunks,omitempty"`
	Sticker             string           `json:"sticker,omitempty"`
	IsLiveTranscription bool             `json:"is_live_transcription,omitempty"`
}

// Attachment carries base64-encoded media alongside a user message.
type Attachment struct {
	Data     string `json:"data"`
	MIMEType string `json:"mime_type"`
}

// NewAttachment encodes raw bytes for transmission.
func NewAttachment(mimeType string, raw []byte) Attachment {
	return Attachment{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MIMEType: strings.TrimSpace(mimeType),
	}
}

// IsImage reports whether the attachment is an image.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.MIMEType), "image/")
}

// IsVideo reports whether the attachment is a video.
func (a Attachment) IsVideo() bool {
	return strings.HasPrefix(strings.ToLower(a.MIMEType), "video/")
}

// Supported reports whether the media type is one the chat accepts.
func (a Attachment) Supported() bool {
	return a.IsImage() || a.IsVideo()
}

// Decode returns the raw attachment bytes.
func (a Attachment) Decode() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	return raw, nil
}

// DataURL renders the attachment as a data: URL.
func (a Attachment) DataURL() string {
	return "data:" + a.MIMEType + ";base64," + a.Data
}

// GroundingChunk is a citation attached to a model reply.
type GroundingChunk struct {
	Web  *GroundingSource `json:"web,omitempty"`
	Maps *GroundingSource `json:"maps,omitempty"`
}

// Source returns whichever source is populated, web first.
func (g GroundingChunk) Source() *GroundingSource {
	if g.Web != nil {
		return g.Web
	}
	return g.Maps
}

type GroundingSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Location is a user's coordinates, used for maps grounding.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// User is the authenticated account as seen by the gating logic.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	IsPremium bool   `json:"is_premium"`
}
