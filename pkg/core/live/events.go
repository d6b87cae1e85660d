package live

import "github.com/vango-go/resilios/pkg/core/types"

// Event is emitted by the Controller as session state changes.
type Event interface {
	EventType() string
}

// StateChangedEvent is emitted on every state transition.
type StateChangedEvent struct {
	From SessionState `json:"from"`
	To   SessionState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// TranscriptEvent carries the new transcript text; empty means cleared.
type TranscriptEvent struct {
	Text string `json:"text"`
}

func (e *TranscriptEvent) EventType() string { return "transcript" }

// StickerEvent carries the active sticker; nil means cleared.
type StickerEvent struct {
	Sticker *types.Sticker `json:"sticker"`
}

func (e *StickerEvent) EventType() string { return "sticker" }

// SessionErrorEvent reports a failed start.
type SessionErrorEvent struct {
	Err error `json:"-"`
}

func (e *SessionErrorEvent) EventType() string { return "session.error" }

// Observer receives controller events. It is called with the controller
// lock held and must not call back into the controller.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }
