package live

import (
	"context"
	"errors"
)

// ErrMediaUnavailable is returned when the session cannot acquire media,
// e.g. the microphone permission was denied.
var ErrMediaUnavailable = errors.New("live: media unavailable")

// MediaStream is an acquired capture resource. Its levels drive the visualizer.
type MediaStream interface {
	SampleSource
	Close() error
}

// MediaSource acquires a MediaStream for one session. On error it may
// return a partially acquired stream, which the caller closes.
type MediaSource interface {
	Acquire(ctx context.Context) (MediaStream, error)
}

// MediaSourceFunc adapts a function to MediaSource.
type MediaSourceFunc func(ctx context.Context) (MediaStream, error)

func (f MediaSourceFunc) Acquire(ctx context.Context) (MediaStream, error) { return f(ctx) }

// SilentMedia returns a MediaSource whose streams always read as silence.
func SilentMedia(bins int) MediaSource {
	return MediaSourceFunc(func(ctx context.Context) (MediaStream, error) {
		return &bufferStream{LevelBuffer: NewLevelBuffer(bins)}, nil
	})
}

// BufferMedia returns a MediaSource that exposes buf as the stream of every
// session. Closing the stream silences buf.
func BufferMedia(buf *LevelBuffer) MediaSource {
	return MediaSourceFunc(func(ctx context.Context) (MediaStream, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &bufferStream{LevelBuffer: buf}, nil
	})
}

type bufferStream struct {
	*LevelBuffer
}

func (s *bufferStream) Close() error {
	s.Clear()
	return nil
}
