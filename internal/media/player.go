package media

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultFPS = 25

// Player is a video handle backed by a FrameSource. A decode goroutine advances
// the current frame at the source frame rate while playing. Events are delivered
// through post so subscribers run on the caller's event loop.
type Player struct {
	id     string
	post   func(func())
	logger *zap.Logger

	mu      sync.Mutex
	src     FrameSource
	uri     string
	frame   image.Image
	paused  bool
	ended   bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	subs    map[int]func(Event)
	nextSub int
}

// NewPlayer creates an empty, paused handle
func NewPlayer(id string, post func(func()), logger *zap.Logger) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{
		id:     id,
		post:   post,
		logger: logger.Named("player").With(zap.String("video", id)),
		paused: true,
		subs:   make(map[int]func(Event)),
	}
}

func (p *Player) ID() string { return p.id }

func (p *Player) URI() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uri
}

func (p *Player) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src != nil
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ended
}

// Frame returns the most recently decoded frame
func (p *Player) Frame() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

// Size returns the intrinsic video dimensions
func (p *Player) Size() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.src == nil {
		return 0, 0
	}
	return p.src.Size()
}

// Subscribe registers fn for playback events. The returned func removes it.
func (p *Player) Subscribe(fn func(Event)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *Player) emit(ev Event) {
	p.mu.Lock()
	fns := make([]func(Event), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	p.post(func() {
		for _, fn := range fns {
			fn(ev)
		}
	})
}

// Load replaces the source, decoding its first frame as the poster.
// Any previous source is stopped and closed. Subscriptions are kept.
func (p *Player) Load(src FrameSource, uri string) error {
	first, err := src.Next()
	if err != nil {
		return fmt.Errorf("failed to read first frame of %s: %w", uri, err)
	}

	wasPlaying := p.halt()

	p.mu.Lock()
	old := p.src
	p.src = src
	p.uri = uri
	p.frame = first
	p.paused = true
	p.ended = false
	p.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			p.logger.Warn("Failed to close previous source", zap.Error(err))
		}
	}
	if wasPlaying {
		p.emit(EventPause)
	}
	p.emit(EventLoaded)
	return nil
}

// Play starts playback, restarting from the beginning if the video had ended
func (p *Player) Play() error {
	p.mu.Lock()
	if p.src == nil {
		p.mu.Unlock()
		return ErrNoSource
	}
	if !p.paused && !p.ended {
		p.mu.Unlock()
		return nil
	}
	if p.ended {
		if err := p.src.Rewind(); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("failed to rewind %s: %w", p.uri, err)
		}
		p.ended = false
	}
	p.paused = false

	fps := p.src.FPS()
	if fps <= 0 {
		fps = defaultFPS
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	p.stopCh, p.doneCh = stop, done
	go p.pump(p.src, time.Duration(float64(time.Second)/fps), stop, done)
	p.mu.Unlock()

	p.emit(EventPlay)
	return nil
}

// Pause stops playback at the current frame
func (p *Player) Pause() {
	p.mu.Lock()
	already := p.paused
	p.mu.Unlock()
	if already {
		return
	}
	p.halt()
	p.emit(EventPause)
}

// halt stops the decode goroutine and marks the player paused.
// Reports whether it was playing.
func (p *Player) halt() bool {
	p.mu.Lock()
	wasPlaying := !p.paused && !p.ended
	p.paused = true
	stop, done := p.stopCh, p.doneCh
	p.stopCh, p.doneCh = nil, nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return wasPlaying
}

func (p *Player) pump(src FrameSource, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		img, err := src.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Warn("Decode failed, ending playback", zap.Error(err))
			}
			p.mu.Lock()
			if p.src == src {
				p.ended = true
				p.stopCh, p.doneCh = nil, nil
			}
			p.mu.Unlock()
			p.emit(EventEnded)
			return
		}

		p.mu.Lock()
		if p.src == src {
			p.frame = img
		}
		p.mu.Unlock()
	}
}

// Close stops playback, releases the source and drops all subscribers
func (p *Player) Close() error {
	p.halt()

	p.mu.Lock()
	src := p.src
	p.src = nil
	p.frame = nil
	p.subs = make(map[int]func(Event))
	p.mu.Unlock()

	if src != nil {
		return src.Close()
	}
	return nil
}
