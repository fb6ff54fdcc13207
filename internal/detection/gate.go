package detection

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"go.uber.org/zap"
)

// GateConfig wires a Gate to the surfaces and the event loop
type GateConfig struct {
	Detector   Detector
	Renderer   Renderer
	Labels     []string
	Thresholds Thresholds
	InputShape InputShape

	// DropStale discards a result when a newer cycle has been dispatched
	DropStale bool
	Timeout   time.Duration

	// Post delivers completions onto the event loop
	Post func(func())
	// Source returns a copy of the drawing surface
	Source func() *image.RGBA
	// Target returns the overlay surface to render into
	Target func() *image.RGBA
	// Rendered is called on the loop after the overlay changed
	Rendered func()

	Logger *zap.Logger
}

// GateStats counts detection cycles
type GateStats struct {
	Dispatched uint64  `json:"dispatched"`
	Completed  uint64  `json:"completed"`
	Failed     uint64  `json:"failed"`
	Dropped    uint64  `json:"dropped"`
	InFlight   int     `json:"in_flight"`
	LastTiming float64 `json:"last_timing_ms"`
}

// Gate triggers detection on demand. Run never blocks: each call dispatches an
// independent cycle. All methods must be called from the event loop.
type Gate struct {
	cfg    GateConfig
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	seq   uint64
	stats GateStats
}

// NewGate creates a gate
func NewGate(cfg GateConfig) *Gate {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Detector == nil {
		cfg.Detector = NopDetector{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		cfg:    cfg,
		logger: cfg.Logger.Named("detection"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Thresholds returns the current thresholds
func (g *Gate) Thresholds() Thresholds { return g.cfg.Thresholds }

// SetThresholds stores th and runs exactly one fresh cycle
func (g *Gate) SetThresholds(th Thresholds) {
	g.cfg.Thresholds = th
	g.Run()
}

// Labels returns the class label map
func (g *Gate) Labels() []string { return g.cfg.Labels }

// Stats returns a copy of the counters
func (g *Gate) Stats() GateStats { return g.stats }

// Run snapshots the drawing surface and dispatches a detection cycle
func (g *Gate) Run() {
	if g.ctx.Err() != nil {
		return
	}
	g.seq++
	snap := Snapshot{
		Seq:     g.seq,
		Image:   g.cfg.Source(),
		TakenAt: time.Now(),
	}
	th := g.cfg.Thresholds
	shape := g.cfg.InputShape

	g.stats.Dispatched++
	g.stats.InFlight++

	go func() {
		res, err := g.detect(snap, th, shape)
		g.cfg.Post(func() { g.complete(snap, res, err) })
	}()
}

func (g *Gate) detect(snap Snapshot, th Thresholds, shape InputShape) (Result, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, snap.Image); err != nil {
		return Result{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	snap.PNG = buf.Bytes()

	ctx, cancel := context.WithTimeout(g.ctx, g.cfg.Timeout)
	defer cancel()
	return g.cfg.Detector.Detect(ctx, snap, th, shape)
}

func (g *Gate) complete(snap Snapshot, res Result, err error) {
	g.stats.InFlight--

	if err != nil {
		g.stats.Failed++
		if g.ctx.Err() == nil {
			g.logger.Warn("Detection failed", zap.Uint64("seq", snap.Seq), zap.Error(err))
		}
		return
	}
	if g.ctx.Err() != nil {
		return
	}
	if g.cfg.DropStale && snap.Seq != g.seq {
		g.stats.Dropped++
		g.logger.Debug("Dropped stale detection", zap.Uint64("seq", snap.Seq), zap.Uint64("latest", g.seq))
		return
	}

	target := g.cfg.Target()
	if err := g.cfg.Renderer.RenderBoxes(snap.Image, target, res.Boxes, g.cfg.Labels); err != nil {
		g.stats.Failed++
		g.logger.Warn("Failed to render boxes", zap.Error(err))
		return
	}
	if err := g.cfg.Renderer.RenderInfo(target, res.TimingMs); err != nil {
		g.logger.Warn("Failed to render timing", zap.Error(err))
	}

	g.stats.Completed++
	g.stats.LastTiming = res.TimingMs
	if g.cfg.Rendered != nil {
		g.cfg.Rendered()
	}
}

// Close cancels in-flight cycles; their completions are ignored
func (g *Gate) Close() {
	g.cancel()
}
