package canvas

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"
)

// StyleState is the user-adjustable drawing configuration
type StyleState struct {
	LineWidth    float64 `json:"line_width"`
	Color        string  `json:"color"`
	CanvasWidth  int     `json:"canvas_width"`
	CanvasHeight int     `json:"canvas_height"`
}

// Point is a position in surface pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SurfacePair owns the drawing and overlay surfaces. They always share
// width and height; the pair is the only way to resize them.
type SurfacePair struct {
	drawing *Surface
	overlay *Surface
	style   StyleState
}

// NewSurfacePair allocates both surfaces at the style's canvas size, cleared to white
func NewSurfacePair(style StyleState) *SurfacePair {
	w, h := clampSize(style.CanvasWidth, style.CanvasHeight)
	style.CanvasWidth, style.CanvasHeight = w, h

	p := &SurfacePair{
		drawing: newSurface(w, h),
		overlay: newSurface(w, h),
		style:   style,
	}
	p.applyStroke()
	return p
}

// Drawing returns the surface users draw on and media is copied into
func (p *SurfacePair) Drawing() *Surface { return p.drawing }

// Overlay returns the annotated output surface
func (p *SurfacePair) Overlay() *Surface { return p.overlay }

// Size returns the shared dimensions
func (p *SurfacePair) Size() (int, int) {
	b := p.drawing.Bounds()
	return b.Dx(), b.Dy()
}

// Style returns the current style state
func (p *SurfacePair) Style() StyleState { return p.style }

// SetStroke updates line width and color on both surfaces
func (p *SurfacePair) SetStroke(color string, width float64) {
	p.style.Color = color
	p.style.LineWidth = width
	p.applyStroke()
}

func (p *SurfacePair) applyStroke() {
	p.drawing.setStroke(p.style.Color, p.style.LineWidth)
	p.overlay.setStroke(p.style.Color, p.style.LineWidth)
}

func clampSize(w, h int) (int, int) {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Resize changes both surfaces to w x h keeping their content centered.
// Content that no longer fits is clipped and newly exposed area is background.
// Non-positive dimensions clamp to 1. Returns false when the size is unchanged.
func (p *SurfacePair) Resize(w, h int) bool {
	w, h = clampSize(w, h)
	oldW, oldH := p.Size()
	if w == oldW && h == oldH {
		return false
	}

	// Integer division truncates toward zero, matching the placement offset
	// used for both growth and shrink.
	offset := image.Pt((w-oldW)/2, (h-oldH)/2)

	p.drawing = relocate(p.drawing, w, h, offset)
	p.overlay = relocate(p.overlay, w, h, offset)
	p.style.CanvasWidth, p.style.CanvasHeight = w, h
	p.applyStroke()
	return true
}

func relocate(old *Surface, w, h int, offset image.Point) *Surface {
	next := newSurface(w, h)
	src := old.img
	dst := src.Bounds().Add(offset).Intersect(next.img.Bounds())
	if !dst.Empty() {
		draw.Draw(next.img, dst, src, dst.Min.Sub(offset), draw.Src)
	}
	return next
}

// Clear fills both surfaces with the background color
func (p *SurfacePair) Clear() {
	p.drawing.Clear()
	p.overlay.Clear()
}

// Stroke draws one freehand segment on the drawing surface with the current style
func (p *SurfacePair) Stroke(from, to Point) error {
	color, width := p.drawing.StrokeStyle()
	return p.drawing.Paint(func(dc *gg.Context) error {
		dc.SetHexColor(color)
		dc.SetLineWidth(width)
		dc.SetLineCap(gg.LineCapRound)
		dc.SetLineJoin(gg.LineJoinRound)
		dc.MoveTo(from.X, from.Y)
		dc.LineTo(to.X, to.Y)
		if err := dc.Stroke(); err != nil {
			return fmt.Errorf("stroke: %w", err)
		}
		return nil
	})
}

// DrawFrame scales img to fill the drawing surface
func (p *SurfacePair) DrawFrame(img image.Image) {
	dst := p.drawing.img
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
}

// DrawImage paints img at its natural size at the origin of both surfaces
func (p *SurfacePair) DrawImage(img image.Image) {
	b := img.Bounds()
	r := image.Rect(0, 0, b.Dx(), b.Dy())
	draw.Draw(p.drawing.img, r, img, b.Min, draw.Src)
	draw.Draw(p.overlay.img, r, img, b.Min, draw.Src)
}

// Snapshot returns an independent copy of the drawing surface
func (p *SurfacePair) Snapshot() *image.RGBA {
	return Clone(p.drawing.img)
}
