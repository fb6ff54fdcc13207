// Package detection runs the object detector against snapshots of the drawing
// surface and renders the results onto the overlay.
package detection

import (
	"context"
	"image"
	"time"
)

// BoundingBox is a detection in snapshot pixel coordinates. X and Y are the top-left corner.
type BoundingBox struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	W       float64 `json:"w"`
	H       float64 `json:"h"`
	ClassID int     `json:"class_id"`
	Score   float64 `json:"score"`
}

// Result is the output of one detector invocation
type Result struct {
	Boxes    []BoundingBox `json:"boxes"`
	TimingMs float64       `json:"timing_ms"`
}

// Thresholds are passed through to the detector
type Thresholds struct {
	IoU              float64 `json:"iou"`
	Score            float64 `json:"score"`
	MaxBoxesPerClass int     `json:"max_boxes_per_class"`
}

// InputShape is the model input tensor shape (N, C, H, W)
type InputShape [4]int

// Snapshot is an immutable copy of the drawing surface
type Snapshot struct {
	Seq     uint64
	Image   *image.RGBA
	PNG     []byte
	TakenAt time.Time
}

// Detector finds objects in a snapshot
type Detector interface {
	Detect(ctx context.Context, snap Snapshot, th Thresholds, shape InputShape) (Result, error)
}

// DetectorFunc adapts a function to Detector
type DetectorFunc func(ctx context.Context, snap Snapshot, th Thresholds, shape InputShape) (Result, error)

func (f DetectorFunc) Detect(ctx context.Context, snap Snapshot, th Thresholds, shape InputShape) (Result, error) {
	return f(ctx, snap, th, shape)
}

// Renderer draws detections onto the overlay
type Renderer interface {
	// RenderBoxes clears target, draws src and then the boxes with their labels
	RenderBoxes(src image.Image, target *image.RGBA, boxes []BoundingBox, labels []string) error
	// RenderInfo draws the inference timing
	RenderInfo(target *image.RGBA, timingMs float64) error
}

// NopDetector finds nothing. It is used when no model endpoint is configured.
type NopDetector struct{}

func (NopDetector) Detect(ctx context.Context, snap Snapshot, _ Thresholds, _ InputShape) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{TimingMs: float64(time.Since(snap.TakenAt).Microseconds()) / 1000}, nil
}
