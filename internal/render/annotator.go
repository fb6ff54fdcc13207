// Package render draws detection boxes and timing onto the overlay surface.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/gogpu/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mikeyg42/sketch-detector/internal/canvas"
	"github.com/mikeyg42/sketch-detector/internal/detection"
)

var palette = []color.RGBA{
	{0xFF, 0x38, 0x38, 0xFF}, {0xFF, 0x9D, 0x97, 0xFF}, {0xFF, 0x70, 0x1F, 0xFF},
	{0xFF, 0xB2, 0x1D, 0xFF}, {0xCF, 0xD2, 0x31, 0xFF}, {0x48, 0xF9, 0x0A, 0xFF},
	{0x92, 0xCC, 0x17, 0xFF}, {0x3D, 0xDB, 0x86, 0xFF}, {0x1A, 0x93, 0x34, 0xFF},
	{0x00, 0xD4, 0xBB, 0xFF}, {0x2C, 0x99, 0xA8, 0xFF}, {0x00, 0xC2, 0xFF, 0xFF},
	{0x34, 0x45, 0x93, 0xFF}, {0x64, 0x73, 0xFF, 0xFF}, {0x00, 0x18, 0xEC, 0xFF},
	{0x84, 0x38, 0xFF, 0xFF}, {0x52, 0x00, 0x85, 0xFF}, {0xCB, 0x38, 0xFF, 0xFF},
	{0xFF, 0x95, 0xC8, 0xFF}, {0xFF, 0x37, 0xC7, 0xFF},
}

// ClassColor returns the palette color for a class
func ClassColor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

// Annotator is the default detection.Renderer
type Annotator struct {
	face      font.Face
	fillAlpha uint8
}

// NewAnnotator creates a renderer using the 7x13 bitmap face
func NewAnnotator() *Annotator {
	return &Annotator{face: basicfont.Face7x13, fillAlpha: 0x33}
}

// RenderBoxes implements detection.Renderer
func (a *Annotator) RenderBoxes(src image.Image, target *image.RGBA, boxes []detection.BoundingBox, labels []string) error {
	draw.Draw(target, target.Bounds(), &image.Uniform{C: canvas.Background}, image.Point{}, draw.Src)
	if src != nil {
		sb := src.Bounds()
		draw.Draw(target, image.Rect(0, 0, sb.Dx(), sb.Dy()), src, sb.Min, draw.Src)
	}
	if len(boxes) == 0 {
		return nil
	}

	b := target.Bounds()
	lineWidth := math.Max(math.Min(float64(b.Dx()), float64(b.Dy()))/200, 2.5)

	err := canvas.Paint(target, func(dc *gg.Context) error {
		for _, box := range boxes {
			c := ClassColor(box.ClassID)

			dc.SetColor(color.NRGBA{R: c.R, G: c.G, B: c.B, A: a.fillAlpha})
			dc.DrawRectangle(box.X, box.Y, box.W, box.H)
			if err := dc.Fill(); err != nil {
				return fmt.Errorf("fill box: %w", err)
			}

			dc.SetColor(c)
			dc.SetLineWidth(lineWidth)
			dc.DrawRectangle(box.X, box.Y, box.W, box.H)
			if err := dc.Stroke(); err != nil {
				return fmt.Errorf("stroke box: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, box := range boxes {
		text := fmt.Sprintf("%s - %.1f%%", detection.Label(labels, box.ClassID), box.Score*100)
		a.label(target, text, int(box.X), int(box.Y), ClassColor(box.ClassID), color.RGBA{A: 0xFF})
	}
	return nil
}

// RenderInfo implements detection.Renderer
func (a *Annotator) RenderInfo(target *image.RGBA, timingMs float64) error {
	text := fmt.Sprintf("Inference: %.1f ms", timingMs)
	a.label(target, text, 0, 0, color.RGBA{A: 0xB0}, color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF})
	return nil
}

// label draws text on a filled background whose bottom edge sits at y,
// moved inside the surface when it would overflow the top
func (a *Annotator) label(dst *image.RGBA, text string, x, y int, bg, fg color.Color) {
	metrics := a.face.Metrics()
	textW := font.MeasureString(a.face, text).Ceil()
	textH := (metrics.Ascent + metrics.Descent).Ceil()
	pad := 2

	top := y - textH - 2*pad
	if top < 0 {
		top = 0
	}
	rect := image.Rect(x, top, x+textW+2*pad, top+textH+2*pad).Intersect(dst.Bounds())
	draw.Draw(dst, rect, &image.Uniform{C: bg}, image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{C: fg},
		Face: a.face,
		Dot:  fixed.P(x+pad, top+pad+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}
