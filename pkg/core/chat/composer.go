package chat

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/resilios/pkg/core/types"
)

// ComposerOptions configures a Composer.
type ComposerOptions struct {
	Transport Transport
	Notifier  Notifier
	// MaxAttachmentBytes defaults to DefaultMaxAttachmentBytes.
	MaxAttachmentBytes int64
	// Now defaults to time.Now.
	Now func() time.Time
}

// Composer is the client-side chat state: the message list, one staged
// attachment and the search, deep-thinking and location toggles.
type Composer struct {
	transport Transport
	notifier  Notifier
	maxBytes  int64
	now       func() time.Time

	mu       sync.Mutex
	messages []types.Message
	staged   *types.Attachment
	search   bool
	thinking bool
	location *types.Location
	inFlight bool
}

// NewComposer creates an empty composer.
func NewComposer(opts ComposerOptions) *Composer {
	c := &Composer{
		transport: opts.Transport,
		notifier:  opts.Notifier,
		maxBytes:  opts.MaxAttachmentBytes,
		now:       opts.Now,
	}
	if c.maxBytes == 0 {
		c.maxBytes = DefaultMaxAttachmentBytes
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Send submits text with the staged attachment and the current toggles.
//
// It returns false without calling the transport when there is nothing to
// send or a send is in flight. The user message is appended before the
// transport call and removed again if the call fails; in that case the
// staged attachment is restored and the error is also passed to the
// Notifier.
func (c *Composer) Send(ctx context.Context, text string) (bool, error) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if c.inFlight || (text == "" && c.staged == nil) {
		c.mu.Unlock()
		return false, nil
	}

	att := c.staged
	c.staged = nil
	c.inFlight = true

	userMsg := types.Message{
		Role:       types.RoleUser,
		Text:       text,
		Timestamp:  c.now(),
		Attachment: att,
	}
	c.messages = append(c.messages, userMsg)
	idx := len(c.messages) - 1

	req := Request{
		Text:         text,
		Attachment:   att,
		UseSearch:    c.search,
		DeepThinking: c.thinking,
	}
	if c.location != nil {
		loc := *c.location
		req.Location = &loc
	}
	c.mu.Unlock()

	reply, err := c.transport.Send(ctx, req)

	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		c.rollbackLocked(idx, userMsg)
		if c.staged == nil {
			c.staged = att
		}
		c.mu.Unlock()
		if c.notifier != nil {
			c.notifier.Notify(err.Error())
		}
		return false, err
	}

	c.messages = append(c.messages, types.Message{
		Role:            types.RoleModel,
		Text:            reply.Text,
		Timestamp:       c.now(),
		GroundingChunks: reply.GroundingChunks,
		Sticker:         reply.Sticker,
	})
	c.mu.Unlock()
	return true, nil
}

// rollbackLocked removes the optimistic message. Other messages may have
// been appended meanwhile, so it falls back to searching from the end.
func (c *Composer) rollbackLocked(idx int, msg types.Message) {
	if idx < len(c.messages) && sameMessage(c.messages[idx], msg) {
		c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
		return
	}
	for i := len(c.messages) - 1; i >= 0; i-- {
		if sameMessage(c.messages[i], msg) {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

func sameMessage(a, b types.Message) bool {
	return a.Role == b.Role && a.Text == b.Text && a.Timestamp.Equal(b.Timestamp) && a.Attachment == b.Attachment
}

// StageFile reads and stages a file. Types other than image/* and video/*
// are ignored and report false with no error.
func (c *Composer) StageFile(mimeType string, r io.Reader) (bool, error) {
	if !SupportedMediaType(mimeType) {
		return false, nil
	}
	att, err := ReadAttachment(mimeType, r, c.maxBytes)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = &att
	return true, nil
}

// StageAttachment stages an already-encoded attachment, replacing any other.
func (c *Composer) StageAttachment(att types.Attachment) bool {
	if !att.Supported() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = &att
	return true
}

// ClearAttachment drops the staged attachment.
func (c *Composer) ClearAttachment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = nil
}

// Staged returns the staged attachment, if any.
func (c *Composer) Staged() (types.Attachment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staged == nil {
		return types.Attachment{}, false
	}
	return *c.staged, true
}

// ToggleSearch flips web-search grounding and returns the new value.
func (c *Composer) ToggleSearch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.search = !c.search
	return c.search
}

// ToggleDeepThinking flips extended reasoning and returns the new value.
func (c *Composer) ToggleDeepThinking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thinking = !c.thinking
	return c.thinking
}

// ToggleLocation clears a shared location, or resolves and shares one.
// A locator failure is returned and changes nothing.
func (c *Composer) ToggleLocation(ctx context.Context, locator Locator) (bool, error) {
	c.mu.Lock()
	if c.location != nil {
		c.location = nil
		c.mu.Unlock()
		return false, nil
	}
	c.mu.Unlock()

	loc, err := locator.Locate(ctx)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.location = &loc
	return true, nil
}

// Options returns the current toggle values.
func (c *Composer) Options() (search, deepThinking bool, location *types.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.location != nil {
		loc := *c.location
		location = &loc
	}
	return c.search, c.thinking, location
}

// InFlight reports whether a send is outstanding.
func (c *Composer) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Messages returns a copy of the conversation.
func (c *Composer) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Message(nil), c.messages...)
}

// Load replaces the conversation, e.g. with server history.
func (c *Composer) Load(messages []types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append([]types.Message(nil), messages...)
}

// AddTranscription appends a line spoken during a live session.
func (c *Composer) AddTranscription(role types.Role, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, types.Message{
		Role:                role,
		Text:                text,
		Timestamp:           c.now(),
		IsLiveTranscription: true,
	})
}
