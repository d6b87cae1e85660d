package live

import (
	"errors"
	"fmt"
	"time"
)

// SessionState represents the current state of the live session.
type SessionState int

const (
	// StateIdle is the resting state; no resources are held.
	StateIdle SessionState = iota
	// StateConnecting is the simulated connection window before the greeting.
	StateConnecting
	// StateSpeaking is when the avatar is "talking" and the visualizer runs.
	StateSpeaking
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SessionState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "IDLE":
		*s = StateIdle
	case "CONNECTING":
		*s = StateConnecting
	case "SPEAKING":
		*s = StateSpeaking
	default:
		return fmt.Errorf("unknown session state %q", text)
	}
	return nil
}

// Config holds the timings and texts of a live session.
type Config struct {
	// ConnectDelay is how long the session stays in Connecting.
	// Default: 700ms
	ConnectDelay time.Duration `json:"connect_delay"`

	// SpeakingDuration is how long the greeting is "spoken" before the
	// session ends on its own.
	// Default: 3s
	SpeakingDuration time.Duration `json:"speaking_duration"`

	// StickerDuration is how long a sticker stays visible. It is independent
	// of SpeakingDuration, so a sticker may disappear mid-speech.
	// Default: 3.5s
	StickerDuration time.Duration `json:"sticker_duration"`

	// ConnectingText is the transcript placeholder while connecting.
	ConnectingText string `json:"connecting_text"`

	// GreetingText is the transcript shown once speaking.
	GreetingText string `json:"greeting_text"`

	Visualizer VisualizerConfig `json:"visualizer"`
}

// DefaultConfig returns a Config with the stock timings and texts.
func DefaultConfig() Config {
	return Config{
		ConnectDelay:     700 * time.Millisecond,
		SpeakingDuration: 3000 * time.Millisecond,
		StickerDuration:  3500 * time.Millisecond,
		ConnectingText:   "Connecting...",
		GreetingText:     "Hello! I am your Resilios avatar. This is a demo reply.",
		Visualizer:       DefaultVisualizerConfig(),
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.ConnectDelay <= 0 {
		return errors.New("connect delay must be > 0")
	}
	if c.SpeakingDuration <= 0 {
		return errors.New("speaking duration must be > 0")
	}
	if c.StickerDuration <= 0 {
		return errors.New("sticker duration must be > 0")
	}
	return c.Visualizer.Validate()
}

// VisualizerConfig controls how amplitude samples become bars.
type VisualizerConfig struct {
	// ArcFraction is the share of the sample set drawn as bars.
	// Default: 0.7
	ArcFraction float64 `json:"arc_fraction"`

	// RadiusFactor scales the inner circle relative to the surface.
	// Default: 0.85
	RadiusFactor float64 `json:"radius_factor"`

	// Exponent of the response curve applied to each normalized sample.
	// Default: 2.5
	Exponent float64 `json:"exponent"`

	// MaxBarLength is the length of a bar at full amplitude.
	// Default: 80
	MaxBarLength float64 `json:"max_bar_length"`

	// MinBarLength drops bars shorter than this.
	// Default: 2
	MinBarLength float64 `json:"min_bar_length"`

	// MinAlpha is the opacity floor.
	// Default: 0.2
	MinAlpha float64 `json:"min_alpha"`

	// FPS is the frame rate of the production scheduler.
	// Default: 60
	FPS int `json:"fps"`
}

// DefaultVisualizerConfig returns the stock visualizer parameters.
func DefaultVisualizerConfig() VisualizerConfig {
	return VisualizerConfig{
		ArcFraction:  0.7,
		RadiusFactor: 0.85,
		Exponent:     2.5,
		MaxBarLength: 80,
		MinBarLength: 2,
		MinAlpha:     0.2,
		FPS:          60,
	}
}

func (c VisualizerConfig) Validate() error {
	if c.ArcFraction <= 0 || c.ArcFraction > 1 {
		return errors.New("visualizer arc fraction must be in (0, 1]")
	}
	if c.RadiusFactor <= 0 {
		return errors.New("visualizer radius factor must be > 0")
	}
	if c.Exponent <= 0 {
		return errors.New("visualizer exponent must be > 0")
	}
	if c.MaxBarLength <= 0 {
		return errors.New("visualizer max bar length must be > 0")
	}
	if c.FPS <= 0 {
		return errors.New("visualizer fps must be > 0")
	}
	return nil
}
