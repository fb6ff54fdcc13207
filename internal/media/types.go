// Package media arbitrates between freehand drawing, static images and videos.
package media

import (
	"context"
	"errors"
	"image"
	"strings"

	"github.com/mikeyg42/sketch-detector/internal/sampling"
)

// Mode is the current source of drawing-surface content
type Mode int

const (
	ModeIdle Mode = iota
	ModeStaticImage
	ModeVideo
)

func (m Mode) String() string {
	switch m {
	case ModeStaticImage:
		return "image"
	case ModeVideo:
		return "video"
	default:
		return "idle"
	}
}

// Event is a playback notification from a video handle
type Event int

const (
	EventLoaded Event = iota
	EventPlay
	EventPause
	EventEnded
)

func (e Event) String() string {
	switch e {
	case EventLoaded:
		return "loaded"
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Icon is what a video's play button shows
type Icon int

const (
	IconPlay Icon = iota
	IconPause
)

func (i Icon) String() string {
	if i == IconPause {
		return "pause"
	}
	return "play"
}

// Kind classifies an upload by MIME type
type Kind int

const (
	KindUnsupported Kind = iota
	KindImage
	KindVideo
)

// KindForMIME dispatches on the MIME type of an uploaded file
func KindForMIME(mime string) Kind {
	mime = strings.ToLower(mime)
	switch {
	case strings.Contains(mime, "image"):
		return KindImage
	case strings.Contains(mime, "video"):
		return KindVideo
	default:
		return KindUnsupported
	}
}

var (
	ErrNoSource         = errors.New("video has no source")
	ErrNotLoaded        = errors.New("video not loaded")
	ErrUnknownVideo     = errors.New("unknown video")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrSuperseded       = errors.New("load superseded by a newer source")
)

// FrameSource yields decoded video frames in order. Next returns io.EOF at the end.
type FrameSource interface {
	Next() (image.Image, error)
	Rewind() error
	FPS() float64
	Size() (int, int)
	Close() error
}

// Opener opens a FrameSource for uri
type Opener func(ctx context.Context, uri string) (FrameSource, error)

// Video is a playable handle that can be sampled
type Video interface {
	sampling.Source
	ID() string
	URI() string
	Size() (int, int)
	Loaded() bool
	Play() error
	Pause()
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Pipeline receives content for the drawing surface
type Pipeline interface {
	ResizeCanvas(w, h int)
	PaintImage(img image.Image)
	PaintFrame(img image.Image)
}

// Playing reports whether v is neither paused nor ended
func Playing(v Video) bool {
	return v != nil && !v.Paused() && !v.Ended()
}
