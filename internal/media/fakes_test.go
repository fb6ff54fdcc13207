package media

import (
	"context"
	"image"
	"image/color"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mikeyg42/sketch-detector/internal/sampling"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// frameSource serves a fixed list of frames
type frameSource struct {
	mu     sync.Mutex
	frames []image.Image
	idx    int
	fps    float64
	w, h   int
	closed bool
}

func newFrameSource(n int, fps float64) *frameSource {
	s := &frameSource{fps: fps, w: 8, h: 6}
	for i := 0; i < n; i++ {
		s.frames = append(s.frames, solid(8, 6, color.RGBA{R: uint8(i), A: 255}))
	}
	return s
}

func (s *frameSource) Next() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.idx]
	s.idx++
	return f, nil
}

func (s *frameSource) Rewind() error {
	s.mu.Lock()
	s.idx = 0
	s.mu.Unlock()
	return nil
}

func (s *frameSource) FPS() float64     { return s.fps }
func (s *frameSource) Size() (int, int) { return s.w, s.h }

func (s *frameSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *frameSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeVideo is a synchronous Video handle
type fakeVideo struct {
	id     string
	w, h   int
	loaded bool
	paused bool
	ended  bool
	frame  image.Image
	subs   map[int]func(Event)
	next   int

	// playErr, if set, makes Play fail without changing state
	playErr error
}

func newFakeVideo(id string, w, h int) *fakeVideo {
	return &fakeVideo{
		id:     id,
		w:      w,
		h:      h,
		loaded: true,
		paused: true,
		frame:  solid(w, h, color.RGBA{B: 255, A: 255}),
		subs:   make(map[int]func(Event)),
	}
}

func (v *fakeVideo) ID() string         { return v.id }
func (v *fakeVideo) URI() string        { return "fake://" + v.id }
func (v *fakeVideo) Size() (int, int)   { return v.w, v.h }
func (v *fakeVideo) Loaded() bool       { return v.loaded }
func (v *fakeVideo) Frame() image.Image { return v.frame }
func (v *fakeVideo) Paused() bool       { return v.paused }
func (v *fakeVideo) Ended() bool        { return v.ended }

func (v *fakeVideo) Play() error {
	if v.playErr != nil {
		return v.playErr
	}
	v.paused = false
	v.ended = false
	v.emit(EventPlay)
	return nil
}

func (v *fakeVideo) Pause() {
	if v.paused {
		return
	}
	v.paused = true
	v.emit(EventPause)
}

func (v *fakeVideo) Subscribe(fn func(Event)) func() {
	id := v.next
	v.next++
	v.subs[id] = fn
	return func() { delete(v.subs, id) }
}

func (v *fakeVideo) emit(ev Event) {
	for _, fn := range v.subs {
		fn(ev)
	}
}

// fakePipeline records what reaches the drawing surface
type fakePipeline struct {
	resizes []image.Point
	images  int
	frames  []image.Image
}

func (p *fakePipeline) ResizeCanvas(w, h int)      { p.resizes = append(p.resizes, image.Pt(w, h)) }
func (p *fakePipeline) PaintImage(img image.Image) { p.images++ }
func (p *fakePipeline) PaintFrame(img image.Image) { p.frames = append(p.frames, img) }

// loop is a posted-func queue drained by the test goroutine
type loop struct {
	ch chan func()
}

func newLoop() *loop { return &loop{ch: make(chan func(), 256)} }

func (l *loop) post(f func()) { l.ch <- f }

// runOne waits for and runs a single posted func
func (l *loop) runOne(t *testing.T) {
	t.Helper()
	select {
	case f := <-l.ch:
		f()
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for posted work")
	}
}

// drain runs everything currently queued
func (l *loop) drain() {
	for {
		select {
		case f := <-l.ch:
			f()
		default:
			return
		}
	}
}

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type manualClock struct {
	now    time.Duration
	timers []*fakeTimer
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) sampling.Timer {
	t := &fakeTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	target := c.now + d
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.f()
	}
	c.now = target
}

type harness struct {
	ctrl     *Controller
	pipeline *fakePipeline
	clock    *manualClock
	loop     *loop
}

func newHarness(loader ImageLoader, opener Opener) *harness {
	h := &harness{pipeline: &fakePipeline{}, clock: &manualClock{}, loop: newLoop()}
	h.ctrl = NewController(ControllerConfig{
		Pipeline:           h.pipeline,
		Scheduler:          h.clock,
		Interval:           time.Second / 15,
		Post:               h.loop.post,
		LoadImage:          loader,
		OpenVideo:          opener,
		ViewportWidth:      1000,
		VideoWidthFraction: 0.4,
	})
	return h
}

func stubLoader(img image.Image, err error) ImageLoader {
	return func(context.Context, string) (image.Image, error) { return img, err }
}
