package canvas

import (
	"image"
	"image/color"
	"testing"
)

var red = color.RGBA{R: 255, A: 255}

func newTestPair(w, h int) *SurfacePair {
	return NewSurfacePair(StyleState{LineWidth: 6, Color: "#000000", CanvasWidth: w, CanvasHeight: h})
}

func TestResizeSameSizeIsNoop(t *testing.T) {
	p := newTestPair(100, 80)
	p.Drawing().RGBA().Set(10, 10, red)
	before := p.Drawing().RGBA()

	if p.Resize(100, 80) {
		t.Fatal("Resize to the same size reported a change")
	}
	if p.Drawing().RGBA() != before {
		t.Fatal("Resize to the same size reallocated the surface")
	}
}

func TestResizeClampsNonPositive(t *testing.T) {
	testCases := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"Zero width", 0, 50, 1, 50},
		{"Negative height", 40, -5, 40, 1},
		{"Both non-positive", -1, 0, 1, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPair(100, 100)
			p.Resize(tc.w, tc.h)

			w, h := p.Size()
			if w != tc.wantW || h != tc.wantH {
				t.Fatalf("Expected %dx%d, got %dx%d", tc.wantW, tc.wantH, w, h)
			}
			ob := p.Overlay().Bounds()
			if ob.Dx() != w || ob.Dy() != h {
				t.Fatalf("Overlay %v does not match drawing %dx%d", ob, w, h)
			}
		})
	}
}

func TestResizePreservesCenteredContent(t *testing.T) {
	testCases := []struct {
		name       string
		oldW, oldH int
		newW, newH int
	}{
		{"Grow", 100, 100, 200, 160},
		{"Shrink", 200, 200, 100, 150},
		{"Grow odd", 101, 99, 150, 120},
		{"Wider shorter", 120, 120, 200, 60},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPair(tc.oldW, tc.oldH)

			// Mark a pixel that survives every case: the old center
			cx, cy := tc.oldW/2, tc.oldH/2
			p.Drawing().RGBA().Set(cx, cy, red)
			p.Overlay().RGBA().Set(cx, cy, red)

			if !p.Resize(tc.newW, tc.newH) {
				t.Fatal("Resize reported no change")
			}

			dx, dy := (tc.newW-tc.oldW)/2, (tc.newH-tc.oldH)/2
			for _, s := range []*Surface{p.Drawing(), p.Overlay()} {
				got := s.RGBA().RGBAAt(cx+dx, cy+dy)
				if got != red {
					t.Fatalf("Expected marked pixel at (%d,%d), got %v", cx+dx, cy+dy, got)
				}
			}
		})
	}
}

func TestResizeExposedAreaIsBackground(t *testing.T) {
	p := newTestPair(10, 10)
	p.Drawing().RGBA().Set(0, 0, red)
	p.Resize(30, 30)

	if got := p.Drawing().RGBA().RGBAAt(0, 0); got != Background {
		t.Fatalf("Expected background at new corner, got %v", got)
	}
	if got := p.Drawing().RGBA().RGBAAt(10, 10); got != red {
		t.Fatalf("Expected moved pixel at (10,10), got %v", got)
	}
}

func TestResizeRestoresStrokeStyle(t *testing.T) {
	p := newTestPair(50, 50)
	p.SetStroke("#ff0000", 12)
	p.Resize(80, 40)

	for _, s := range []*Surface{p.Drawing(), p.Overlay()} {
		c, w := s.StrokeStyle()
		if c != "#ff0000" || w != 12 {
			t.Fatalf("Expected stroke #ff0000/12 after resize, got %s/%g", c, w)
		}
	}
	st := p.Style()
	if st.CanvasWidth != 80 || st.CanvasHeight != 40 {
		t.Fatalf("Style dimensions not updated: %+v", st)
	}
}

func TestClearFillsBothWhite(t *testing.T) {
	p := newTestPair(20, 20)
	p.Drawing().RGBA().Set(5, 5, red)
	p.Overlay().RGBA().Set(6, 6, red)
	p.Clear()

	for _, s := range []*Surface{p.Drawing(), p.Overlay()} {
		img := s.RGBA()
		for i := 0; i < len(img.Pix); i++ {
			if img.Pix[i] != 255 {
				t.Fatalf("Expected all-white surface after clear, byte %d = %d", i, img.Pix[i])
			}
		}
	}
}

func TestStrokeMarksDrawingOnly(t *testing.T) {
	p := newTestPair(64, 64)
	p.SetStroke("#000000", 8)

	if err := p.Stroke(Point{X: 10, Y: 32}, Point{X: 54, Y: 32}); err != nil {
		t.Fatalf("Stroke failed: %v", err)
	}

	if got := p.Drawing().RGBA().RGBAAt(32, 32); got.R > 64 {
		t.Fatalf("Expected a dark pixel on the stroke, got %v", got)
	}
	if got := p.Overlay().RGBA().RGBAAt(32, 32); got != Background {
		t.Fatalf("Overlay modified by stroke: %v", got)
	}
}

func TestDrawFrameFillsSurface(t *testing.T) {
	p := newTestPair(40, 30)
	frame := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for i := range frame.Pix {
		frame.Pix[i] = 0
	}
	for i := 3; i < len(frame.Pix); i += 4 {
		frame.Pix[i] = 255
	}

	p.DrawFrame(frame)

	for _, pt := range []image.Point{{0, 0}, {39, 29}, {20, 15}} {
		if got := p.Drawing().RGBA().RGBAAt(pt.X, pt.Y); got.R != 0 || got.A != 255 {
			t.Fatalf("Expected black at %v, got %v", pt, got)
		}
	}
}

func TestDrawImageNaturalSize(t *testing.T) {
	p := newTestPair(50, 50)
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, red)
		}
	}

	p.DrawImage(img)

	if got := p.Overlay().RGBA().RGBAAt(9, 9); got != red {
		t.Fatalf("Expected image pixel on overlay, got %v", got)
	}
	if got := p.Drawing().RGBA().RGBAAt(10, 10); got != Background {
		t.Fatalf("Expected untouched pixel outside image, got %v", got)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	p := newTestPair(8, 8)
	snap := p.Snapshot()
	p.Drawing().RGBA().Set(1, 1, red)

	if got := snap.RGBAAt(1, 1); got != Background {
		t.Fatalf("Snapshot changed with the drawing surface: %v", got)
	}
}
