package recording

import (
	"image"
	"sync"

	"github.com/mikeyg42/sketch-detector/internal/canvas"
)

// FrameTap is a single-slot mailbox holding the latest overlay frame.
// Publishing overwrites; readers never block the publisher.
type FrameTap struct {
	mu    sync.RWMutex
	frame *image.RGBA
	seq   uint64
	subs  map[int]func(*image.RGBA)
	next  int
}

// NewFrameTap creates an empty tap
func NewFrameTap() *FrameTap {
	return &FrameTap{subs: make(map[int]func(*image.RGBA))}
}

// Publish stores a copy of img as the latest frame and notifies subscribers
func (t *FrameTap) Publish(img *image.RGBA) {
	frame := canvas.Clone(img)

	t.mu.Lock()
	t.frame = frame
	t.seq++
	fns := make([]func(*image.RGBA), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(frame)
	}
}

// Latest returns the most recent frame and its sequence number.
// The frame must be treated as read-only.
func (t *FrameTap) Latest() (*image.RGBA, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frame, t.seq
}

// Subscribe registers fn for every published frame. fn runs on the publisher's
// goroutine and must not block. The returned func removes it.
func (t *FrameTap) Subscribe(fn func(*image.RGBA)) func() {
	t.mu.Lock()
	id := t.next
	t.next++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}
