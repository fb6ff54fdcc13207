// Package canvas holds the drawing and overlay surfaces and keeps them in sync.
package canvas

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/gogpu/gg"
)

// Background is the color of a cleared surface
var Background = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Surface is a raster with its own stroke attributes
type Surface struct {
	img         *image.RGBA
	strokeColor string
	strokeWidth float64
}

func newSurface(w, h int) *Surface {
	s := &Surface{img: image.NewRGBA(image.Rect(0, 0, w, h))}
	s.fill(Background)
	return s
}

// RGBA exposes the backing raster. Callers must not retain it across a resize.
func (s *Surface) RGBA() *image.RGBA { return s.img }

// Bounds returns the surface bounds
func (s *Surface) Bounds() image.Rectangle { return s.img.Bounds() }

// StrokeStyle returns the color and width used for strokes
func (s *Surface) StrokeStyle() (string, float64) { return s.strokeColor, s.strokeWidth }

func (s *Surface) setStroke(c string, w float64) {
	s.strokeColor = c
	s.strokeWidth = w
}

func (s *Surface) fill(c color.Color) {
	draw.Draw(s.img, s.img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// Clear fills the surface with the background color
func (s *Surface) Clear() { s.fill(Background) }

// Paint runs fn against a vector context over the surface and copies the result back
func (s *Surface) Paint(fn func(dc *gg.Context) error) error {
	return Paint(s.img, fn)
}

// Paint runs fn on a gg context seeded with dst and writes the rendered pixels back into dst
func Paint(dst *image.RGBA, fn func(dc *gg.Context) error) error {
	dc := gg.NewContextForImage(dst)
	defer dc.Close()

	if err := fn(dc); err != nil {
		return err
	}
	out := dc.Image()
	if out == nil {
		return fmt.Errorf("paint produced no image")
	}
	draw.Draw(dst, dst.Bounds(), out, out.Bounds().Min, draw.Src)
	return nil
}

// Clone returns an independent copy of img as RGBA
func Clone(img image.Image) *image.RGBA {
	switch src := img.(type) {
	case *image.RGBA:
		dst := *src
		dst.Pix = make([]byte, len(src.Pix))
		copy(dst.Pix, src.Pix)
		return &dst
	default:
		bounds := img.Bounds()
		dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
		return dst
	}
}
