package media

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikeyg42/sketch-detector/internal/sampling"
)

// UploadedVideoID names the handle that user uploads are bound to
const UploadedVideoID = "uploaded"

// ImageLoader fetches and decodes an image
type ImageLoader func(ctx context.Context, uri string) (image.Image, error)

// ControllerConfig wires a Controller to its collaborators
type ControllerConfig struct {
	Pipeline  Pipeline
	Scheduler sampling.Scheduler
	Interval  time.Duration

	// Post runs a func on the event loop; async completions go through it
	Post func(func())

	LoadImage ImageLoader
	OpenVideo Opener

	ViewportWidth      int
	VideoWidthFraction float64

	Logger *zap.Logger
}

// VideoState is a snapshot of one video handle for the UI
type VideoState struct {
	ID      string `json:"id"`
	URI     string `json:"uri"`
	Loaded  bool   `json:"loaded"`
	Visible bool   `json:"visible"`
	Icon    string `json:"icon"`
	Active  bool   `json:"active"`
	Playing bool   `json:"playing"`
}

type handle struct {
	video       Video
	player      *Player // nil for handles not owned by the controller
	visible     bool
	unsubscribe func()
}

// Controller is the media state machine. It must only be used from the event loop.
type Controller struct {
	cfg     ControllerConfig
	logger  *zap.Logger
	sampler *sampling.Sampler

	mode     Mode
	imageURI string
	active   Video

	handles map[string]*handle
	order   []string
	icons   map[string]Icon

	loadSeq uint64
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewController creates a controller in Idle mode with an empty uploaded-video handle
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.LoadImage == nil {
		cfg.LoadImage = LoadImage
	}
	if cfg.VideoWidthFraction <= 0 {
		cfg.VideoWidthFraction = 0.4
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:     cfg,
		logger:  cfg.Logger.Named("media"),
		handles: make(map[string]*handle),
		icons:   make(map[string]Icon),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.sampler = sampling.New(cfg.Scheduler, cfg.Interval, c.guard, cfg.Pipeline.PaintFrame, cfg.Logger)

	uploaded := NewPlayer(UploadedVideoID, cfg.Post, cfg.Logger)
	c.register(uploaded, uploaded, false)
	return c
}

func (c *Controller) guard(src sampling.Source) bool {
	return c.mode == ModeVideo && c.active != nil && sampling.Source(c.active) == src
}

func (c *Controller) register(v Video, p *Player, visible bool) {
	id := v.ID()
	c.icons[id] = IconPlay
	h := &handle{video: v, player: p, visible: visible}
	h.unsubscribe = v.Subscribe(func(ev Event) { c.onEvent(id, ev) })
	c.handles[id] = h
	c.order = append(c.order, id)
}

func (c *Controller) onEvent(id string, ev Event) {
	switch ev {
	case EventPlay:
		c.icons[id] = IconPause
	case EventPause, EventEnded:
		c.icons[id] = IconPlay
	}
}

// Mode returns the current media mode
func (c *Controller) Mode() Mode { return c.mode }

// ImageURI returns the uri of the static image, if in image mode
func (c *Controller) ImageURI() string { return c.imageURI }

// Active returns the active video handle, or nil
func (c *Controller) Active() Video { return c.active }

// Sampler exposes the frame sampling loop
func (c *Controller) Sampler() *sampling.Sampler { return c.sampler }

// Icon returns the play button state for a video
func (c *Controller) Icon(id string) Icon { return c.icons[id] }

// Videos lists every registered handle in registration order
func (c *Controller) Videos() []VideoState {
	out := make([]VideoState, 0, len(c.order))
	for _, id := range c.order {
		h := c.handles[id]
		out = append(out, VideoState{
			ID:      id,
			URI:     h.video.URI(),
			Loaded:  h.video.Loaded(),
			Visible: h.visible,
			Icon:    c.icons[id].String(),
			Active:  c.active == h.video,
			Playing: Playing(h.video),
		})
	}
	return out
}

// PlayingCount returns the number of handles currently playing
func (c *Controller) PlayingCount() int {
	n := 0
	for _, h := range c.handles {
		if Playing(h.video) {
			n++
		}
	}
	return n
}

// AddVideo registers an externally owned handle, such as a test double
func (c *Controller) AddVideo(v Video) {
	c.register(v, nil, true)
}

// AddExampleVideo creates a handle for uri and opens it in the background.
// done, if set, runs on the loop once the source is loaded or failed.
func (c *Controller) AddExampleVideo(uri string, done func(id string, err error)) string {
	id := uuid.New().String()
	p := NewPlayer(id, c.cfg.Post, c.cfg.Logger)
	c.register(p, p, true)

	c.open(uri, func(src FrameSource, err error) {
		if err == nil {
			err = p.Load(src, uri)
		}
		if err != nil {
			c.logger.Warn("Failed to load example video", zap.String("uri", uri), zap.Error(err))
		}
		if done != nil {
			done(id, err)
		}
	})
	return id
}

func (c *Controller) open(uri string, finish func(FrameSource, error)) {
	if c.cfg.OpenVideo == nil {
		finish(nil, fmt.Errorf("no video decoder configured"))
		return
	}
	ctx := c.ctx
	go func() {
		src, err := c.cfg.OpenVideo(ctx, uri)
		c.cfg.Post(func() { finish(src, err) })
	}()
}

// LoadImage switches to image mode once uri has been decoded. A failed load
// leaves the previous state untouched. done runs on the loop.
func (c *Controller) LoadImage(uri string, done func(error)) {
	c.loadSeq++
	seq := c.loadSeq
	ctx := c.ctx

	go func() {
		img, err := c.cfg.LoadImage(ctx, uri)
		c.cfg.Post(func() {
			err := c.finishImage(seq, uri, img, err)
			if done != nil {
				done(err)
			}
		})
	}()
}

func (c *Controller) finishImage(seq uint64, uri string, img image.Image, err error) error {
	if seq != c.loadSeq {
		return ErrSuperseded
	}
	if err != nil {
		c.logger.Warn("Image load failed", zap.String("uri", uri), zap.Error(err))
		return err
	}

	if c.active != nil && Playing(c.active) {
		c.active.Pause()
	}
	c.sampler.Cancel()
	c.mode = ModeStaticImage
	c.imageURI = uri
	c.cfg.Pipeline.PaintImage(img)
	c.logger.Info("Image loaded", zap.String("uri", uri))
	return nil
}

// LoadVideo binds uri to the uploaded-video handle. Once the source opens the
// handle is revealed and activated. done runs on the loop.
func (c *Controller) LoadVideo(uri string, done func(error)) {
	c.sampler.Cancel()
	if c.active != nil && Playing(c.active) {
		c.active.Pause()
	}
	c.loadSeq++
	seq := c.loadSeq

	h := c.handles[UploadedVideoID]
	c.open(uri, func(src FrameSource, err error) {
		err = c.finishVideo(seq, h, uri, src, err)
		if done != nil {
			done(err)
		}
	})
}

func (c *Controller) finishVideo(seq uint64, h *handle, uri string, src FrameSource, err error) error {
	if err != nil {
		c.logger.Warn("Video load failed", zap.String("uri", uri), zap.Error(err))
		return err
	}
	if seq != c.loadSeq {
		src.Close()
		return ErrSuperseded
	}
	if err := h.player.Load(src, uri); err != nil {
		src.Close()
		c.logger.Warn("Video load failed", zap.String("uri", uri), zap.Error(err))
		return err
	}
	h.visible = true
	c.logger.Info("Video loaded", zap.String("uri", uri))

	if !Playing(h.video) {
		return c.Activate(h.video.ID())
	}
	return nil
}

// Activate applies the video click rule: start the first video, toggle the
// active one, or switch from the active one to id.
func (c *Controller) Activate(id string) error {
	h, ok := c.handles[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVideo, id)
	}
	v := h.video
	if !v.Loaded() {
		return ErrNotLoaded
	}

	if c.active == v && Playing(v) {
		v.Pause()
		c.sampler.Cancel()
		c.loadSeq++
		return nil
	}
	return c.start(v)
}

// start plays v and only then commits it as the active video, so a failed
// Play leaves mode, image and the previous video as they were.
func (c *Controller) start(v Video) error {
	if err := v.Play(); err != nil {
		c.logger.Warn("Play failed", zap.String("video", v.ID()), zap.Error(err))
		return err
	}
	if prev := c.active; prev != nil && prev != v {
		prev.Pause()
	}
	c.sampler.Cancel()

	c.loadSeq++
	c.mode = ModeVideo
	c.imageURI = ""
	c.active = v

	w, h := DisplaySize(v, c.cfg.ViewportWidth, c.cfg.VideoWidthFraction)
	if w > 0 && h > 0 {
		c.cfg.Pipeline.ResizeCanvas(w, h)
	}
	c.sampler.Start(v)
	return nil
}

// PauseActive pauses the active video and stops sampling
func (c *Controller) PauseActive() {
	if c.active != nil && Playing(c.active) {
		c.active.Pause()
	}
	c.sampler.Cancel()
}

// DisplaySize caps the video width at fraction of the viewport, keeping aspect ratio
func DisplaySize(v Video, viewportWidth int, fraction float64) (int, int) {
	vw, vh := v.Size()
	if vw <= 0 || vh <= 0 {
		return 0, 0
	}
	width, height := float64(vw), float64(vh)
	ratio := width / height
	maxWidth := float64(viewportWidth) * fraction
	if viewportWidth > 0 && width > maxWidth {
		width = maxWidth
		height = width / ratio
	}
	return int(width), int(height)
}

// Close stops sampling, cancels pending loads and releases every owned player
func (c *Controller) Close() {
	c.sampler.Cancel()
	c.cancel()
	for _, id := range c.order {
		h := c.handles[id]
		h.unsubscribe()
		if h.player != nil {
			if err := h.player.Close(); err != nil {
				c.logger.Warn("Failed to close video", zap.String("video", id), zap.Error(err))
			}
		}
	}
	c.handles = make(map[string]*handle)
	c.order = nil
	c.active = nil
}
