package chat

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/vango-go/resilios/pkg/core/types"
)

// DefaultMaxAttachmentBytes bounds a staged file.
const DefaultMaxAttachmentBytes = 20 << 20

var (
	// ErrUnsupportedMedia is returned for attachments that are neither image nor video.
	ErrUnsupportedMedia = errors.New("chat: only image and video attachments are supported")
	// ErrAttachmentTooLarge is returned when a file exceeds the size bound.
	ErrAttachmentTooLarge = errors.New("chat: attachment too large")
)

// SupportedMediaType reports whether mimeType is image/* or video/*.
func SupportedMediaType(mimeType string) bool {
	return types.Attachment{MIMEType: mimeType}.Supported()
}

// ReadAttachment reads r fully and encodes it. max <= 0 means no bound.
func ReadAttachment(mimeType string, r io.Reader, max int64) (types.Attachment, error) {
	if !SupportedMediaType(mimeType) {
		return types.Attachment{}, ErrUnsupportedMedia
	}
	if max > 0 {
		r = io.LimitReader(r, max+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return types.Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	if max > 0 && int64(len(raw)) > max {
		return types.Attachment{}, ErrAttachmentTooLarge
	}
	return types.NewAttachment(mimeType, raw), nil
}

// MediaTypeForPath guesses a media type from a file extension.
func MediaTypeForPath(path string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}
