// Package protocol defines the JSON frames exchanged on /v1/live.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vango-go/resilios/pkg/core/live"
	"github.com/vango-go/resilios/pkg/core/types"
)

const (
	ProtocolVersion1 = "1"

	MicGranted = "granted"
	MicDenied  = "denied"

	// MaxLevels bounds a single levels frame.
	MaxLevels = 1024

	DefaultSurfaceSize = 300
	maxSurfaceSize     = 8192
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// SurfaceSize is the client's visualizer canvas in CSS pixels.
type SurfaceSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type ClientHello struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// UserID is used only when the connection carries no token.
	UserID string `json:"user_id,omitempty"`

	Mic     string       `json:"mic,omitempty"`
	Surface *SurfaceSize `json:"surface,omitempty"`

	// Bins is the number of amplitude values the client will send per
	// levels frame.
	Bins int `json:"bins,omitempty"`
}

// MicAllowed reports whether the client has microphone permission. An
// omitted mic field means granted.
func (h ClientHello) MicAllowed() bool {
	return h.Mic != MicDenied
}

type ClientToggle struct {
	Type string `json:"type"`
}

type ClientStop struct {
	Type string `json:"type"`
}

// ClientLevels is one amplitude snapshot from the client's analyser.
type ClientLevels struct {
	Type   string `json:"type"`
	Levels []int  `json:"levels"`
}

// Bytes clamps the levels into 0..255.
func (m ClientLevels) Bytes() []uint8 {
	out := make([]uint8, len(m.Levels))
	for i, v := range m.Levels {
		out[i] = uint8(min(max(v, 0), 255))
	}
	return out
}

type ClientResize struct {
	Type string `json:"type"`
	SurfaceSize
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "toggle":
		return ClientToggle{Type: typ}, nil
	case "stop":
		return ClientStop{Type: typ}, nil
	case "levels":
		var msg ClientLevels
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid levels frame", "")
		}
		if len(msg.Levels) > MaxLevels {
			return nil, badRequest(fmt.Sprintf("levels must have at most %d values", MaxLevels), "levels")
		}
		return msg, nil
	case "resize":
		var msg ClientResize
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid resize frame", "")
		}
		if err := validateSurface(msg.SurfaceSize, ""); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("protocol_version is required", "protocol_version")
	}
	if strings.TrimSpace(msg.ProtocolVersion) != ProtocolVersion1 {
		return unsupported("unsupported protocol_version", "protocol_version")
	}
	switch msg.Mic {
	case "", MicGranted, MicDenied:
	default:
		return badRequest("mic must be granted or denied", "mic")
	}
	if msg.Bins < 0 || msg.Bins > MaxLevels {
		return badRequest(fmt.Sprintf("bins must be between 0 and %d", MaxLevels), "bins")
	}
	if msg.Surface != nil {
		if err := validateSurface(*msg.Surface, "surface."); err != nil {
			return err
		}
	}
	return nil
}

func validateSurface(s SurfaceSize, prefix string) error {
	if s.Width <= 0 || s.Width > maxSurfaceSize {
		return badRequest("width must be in (0, 8192]", prefix+"width")
	}
	if s.Height <= 0 || s.Height > maxSurfaceSize {
		return badRequest("height must be in (0, 8192]", prefix+"height")
	}
	return nil
}

type ReadyUser struct {
	ID        string `json:"id,omitempty"`
	IsPremium bool   `json:"is_premium"`
}

type ReadyTimings struct {
	ConnectDelayMS     int64 `json:"connect_delay_ms"`
	SpeakingDurationMS int64 `json:"speaking_duration_ms"`
	StickerDurationMS  int64 `json:"sticker_duration_ms"`
	FPS                int   `json:"fps"`
}

type ServerSessionReady struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	User            ReadyUser    `json:"user"`
	Timings         ReadyTimings `json:"timings"`
}

type ServerState struct {
	Type string            `json:"type"`
	From live.SessionState `json:"from"`
	To   live.SessionState `json:"to"`
}

type ServerTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerSticker struct {
	Type    string         `json:"type"`
	Sticker *types.Sticker `json:"sticker"`
}

// ServerToggled reports the outcome of a toggle or stop request.
type ServerToggled struct {
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
}

type ServerUpsell struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Price       string `json:"price,omitempty"`
	TrialDays   int    `json:"trial_days,omitempty"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

type ServerVisualizerFrame struct {
	Type   string     `json:"type"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Bars   []live.Bar `json:"bars"`
}

type ServerVisualizerClear struct {
	Type string `json:"type"`
}

type ServerError struct {
	Type    string         `json:"type"`
	Scope   string         `json:"scope,omitempty"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Close   bool           `json:"close,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
