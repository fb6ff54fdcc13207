// Package session composes the surfaces, media controller, detection gate and
// recording session behind a single event loop.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikeyg42/sketch-detector/internal/canvas"
	"github.com/mikeyg42/sketch-detector/internal/config"
	"github.com/mikeyg42/sketch-detector/internal/detection"
	"github.com/mikeyg42/sketch-detector/internal/media"
	"github.com/mikeyg42/sketch-detector/internal/recording"
	"github.com/mikeyg42/sketch-detector/internal/sampling"
	"github.com/mikeyg42/sketch-detector/internal/storage"
)

var (
	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("session closed")
	// ErrVideoPlaying rejects freehand strokes while a video writes the drawing surface
	ErrVideoPlaying = errors.New("cannot draw while a video is playing")
	// ErrNoStroke is returned by StrokeTo without a preceding BeginStroke
	ErrNoStroke = errors.New("no stroke in progress")
	// ErrInvalidColor rejects colors that are not #rgb or #rrggbb
	ErrInvalidColor = errors.New("invalid color")
	// ErrForbiddenSource rejects media outside the upload directory and the examples
	ErrForbiddenSource = errors.New("media source not allowed")
)

// Options wires a Session to its collaborators. Zero values fall back to defaults.
type Options struct {
	Config *config.Config

	Detector detection.Detector
	Renderer detection.Renderer
	Labels   []string

	OpenVideo media.Opener
	LoadImage media.ImageLoader

	Saver    storage.Saver
	Recorder recording.Factory

	// Scheduler drives the sampling loop; nil uses real timers posted onto the loop
	Scheduler sampling.Scheduler

	Logger *zap.Logger
}

// Saved reports the outcome of a background save
type Saved struct {
	Artifact storage.Artifact
	Err      error
}

// Session is one annotation session. Its methods are safe for concurrent use;
// they run on the session's event loop.
type Session struct {
	id     string
	cfg    *config.Config
	opts   Options
	logger *zap.Logger
	loop   *loop

	pair       *canvas.SurfacePair
	controller *media.Controller
	gate       *detection.Gate
	tap        *recording.FrameTap
	recorder   *recording.Session

	stroking bool
	last     canvas.Point

	saves   sync.WaitGroup
	savedMu sync.Mutex
	onSaved []func(Saved)
}

// New creates a session and starts its event loop
func New(opts Options) (*Session, error) {
	if opts.Config == nil {
		opts.Config = config.NewDefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Renderer == nil {
		return nil, fmt.Errorf("session requires a renderer")
	}
	if opts.Saver == nil {
		return nil, fmt.Errorf("session requires a saver")
	}
	if opts.Labels == nil {
		opts.Labels = detection.CocoLabels
	}
	if opts.Recorder == nil {
		opts.Recorder = recording.NewWebMFactory(opts.Config.Recording.JPEGQuality, opts.Logger)
	}

	cfg := opts.Config
	s := &Session{
		id:   uuid.New().String(),
		cfg:  cfg,
		opts: opts,
		loop: newLoop(),
		tap:  recording.NewFrameTap(),
	}
	s.logger = opts.Logger.Named("session").With(zap.String("session_id", s.id))

	s.pair = canvas.NewSurfacePair(canvas.StyleState{
		LineWidth:    cfg.Canvas.LineWidth,
		Color:        cfg.Canvas.Color,
		CanvasWidth:  cfg.Canvas.Width,
		CanvasHeight: cfg.Canvas.Height,
	})

	s.gate = detection.NewGate(detection.GateConfig{
		Detector: opts.Detector,
		Renderer: opts.Renderer,
		Labels:   opts.Labels,
		Thresholds: detection.Thresholds{
			IoU:              cfg.Detection.IoUThreshold,
			Score:            cfg.Detection.Score,
			MaxBoxesPerClass: cfg.Detection.MaxBoxes,
		},
		InputShape: detection.InputShape(cfg.Detection.InputShape),
		DropStale:  cfg.Detection.DropStale,
		Timeout:    cfg.Detection.Timeout.Duration,
		Post:       s.post,
		Source:     s.pair.Snapshot,
		Target:     func() *image.RGBA { return s.pair.Overlay().RGBA() },
		Rendered:   s.publish,
		Logger:     opts.Logger,
	})

	sched := opts.Scheduler
	if sched == nil {
		sched = sampling.PostScheduler{Post: s.post}
	}
	s.controller = media.NewController(media.ControllerConfig{
		Pipeline:           pipeline{s},
		Scheduler:          sched,
		Interval:           cfg.SampleInterval(),
		Post:               s.post,
		LoadImage:          opts.LoadImage,
		OpenVideo:          opts.OpenVideo,
		ViewportWidth:      cfg.Viewport.Width,
		VideoWidthFraction: cfg.Viewport.VideoWidthFraction,
		Logger:             opts.Logger,
	})

	s.recorder = recording.NewSession(recording.Config{
		Factory:   opts.Recorder,
		Tap:       s.tap,
		FrameRate: cfg.Recording.FrameRate,
		Timeslice: cfg.Recording.Timeslice.Duration,
		FileName:  cfg.Recording.FileName,
		MimeType:  cfg.Recording.MimeType,
		Save: func(name, contentType string, data []byte) {
			s.save(storage.KindRecording, name, contentType, data)
		},
		Logger: opts.Logger,
	})

	s.publish()
	s.gate.Run()
	go s.loop.run()

	s.logger.Info("Session started",
		zap.Int("width", cfg.Canvas.Width),
		zap.Int("height", cfg.Canvas.Height))
	return s, nil
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

func (s *Session) post(fn func()) {
	if !s.loop.post(fn) {
		s.logger.Debug("Dropped event after close")
	}
}

// do runs fn on the loop and waits for its result
func (s *Session) do(fn func() error) error {
	res := make(chan error, 1)
	if !s.loop.post(func() { res <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-s.loop.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrClosed
		}
	}
}

// await runs start on the loop, then waits for the completion it reports
func (s *Session) await(ctx context.Context, start func(done func(error))) error {
	res := make(chan error, 1)
	if err := s.do(func() error {
		start(func(err error) { res <- err })
		return nil
	}); err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.loop.done:
		return ErrClosed
	}
}

// publish pushes the overlay to the frame tap. Runs on the loop.
func (s *Session) publish() {
	s.tap.Publish(s.pair.Overlay().RGBA())
}

// pipeline lets the media controller repaint the surfaces. Runs on the loop.
type pipeline struct{ s *Session }

func (p pipeline) ResizeCanvas(w, h int) {
	if p.s.pair.Resize(w, h) {
		p.s.publish()
		p.s.gate.Run()
	}
}

func (p pipeline) PaintImage(img image.Image) {
	b := img.Bounds()
	if p.s.pair.Resize(b.Dx(), b.Dy()) {
		p.s.logger.Debug("Canvas resized for image", zap.Int("width", b.Dx()), zap.Int("height", b.Dy()))
	}
	p.s.pair.DrawImage(img)
	p.s.publish()
	p.s.gate.Run()
}

func (p pipeline) PaintFrame(img image.Image) {
	p.s.pair.DrawFrame(img)
	p.s.gate.Run()
}

// Close stops playback, discards an active recording, waits for pending saves
// and stops the loop
func (s *Session) Close() error {
	err := s.do(func() error {
		s.controller.Close()
		s.gate.Close()
		if s.recorder.State() != recording.StateIdle {
			if err := s.recorder.Quit(); err != nil {
				s.logger.Warn("Failed to discard recording", zap.Error(err))
			}
		}
		return nil
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	s.loop.close()
	s.saves.Wait()
	s.logger.Info("Session closed")
	return err
}

func (s *Session) ctxTimeout() (context.Context, context.CancelFunc) {
	timeout := s.cfg.Recording.SaveTimeout.Duration
	if timeout <= 0 {
		timeout = time.Minute
	}
	return context.WithTimeout(context.Background(), timeout)
}

// save hands data to the saver in the background
func (s *Session) save(kind, name, contentType string, data []byte) storage.Artifact {
	a := storage.NewArtifact(kind, name, contentType, int64(len(data)))
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		ctx, cancel := s.ctxTimeout()
		defer cancel()

		key, err := s.opts.Saver.Save(ctx, a, data)
		if err != nil {
			s.logger.Error("Failed to save artifact",
				zap.String("name", name),
				zap.String("kind", kind),
				zap.Error(err))
		} else {
			a.Key = key
			s.logger.Info("Artifact saved",
				zap.String("name", name),
				zap.String("key", key),
				zap.Int("size", len(data)))
		}

		s.savedMu.Lock()
		fns := append([]func(Saved){}, s.onSaved...)
		s.savedMu.Unlock()
		for _, fn := range fns {
			fn(Saved{Artifact: a, Err: err})
		}
	}()
	return a
}

// OnSaved registers fn for every finished background save
func (s *Session) OnSaved(fn func(Saved)) {
	s.savedMu.Lock()
	s.onSaved = append(s.onSaved, fn)
	s.savedMu.Unlock()
}

// OverlayPNG encodes the latest published overlay
func (s *Session) OverlayPNG() ([]byte, error) {
	img, _ := s.tap.Latest()
	if img == nil {
		return nil, fmt.Errorf("no overlay published")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}

// SubscribeOverlay calls fn with every published overlay frame. fn must not block.
func (s *Session) SubscribeOverlay(fn func(*image.RGBA)) func() {
	return s.tap.Subscribe(fn)
}
