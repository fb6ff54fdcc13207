package gocvsource

import (
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"
)

func TestFrameImage(t *testing.T) {
	testCases := []struct {
		name string
		typ  gocv.MatType
		data []byte
		want color.Color
	}{
		{"BGR", gocv.MatTypeCV8UC3, []byte{10, 20, 30, 10, 20, 30}, color.RGBA{R: 30, G: 20, B: 10, A: 255}},
		{"BGRA", gocv.MatTypeCV8UC4, []byte{10, 20, 30, 255, 10, 20, 30, 255}, color.RGBA{R: 30, G: 20, B: 10, A: 255}},
		{"Gray", gocv.MatTypeCV8UC1, []byte{77, 77}, color.Gray{Y: 77}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := gocv.NewMatFromBytes(1, 2, tc.typ, tc.data)
			if err != nil {
				t.Fatalf("Failed to build mat: %v", err)
			}
			defer m.Close()

			img, err := frameImage(&m)
			if err != nil {
				t.Fatalf("frameImage failed: %v", err)
			}
			if img.Bounds() != image.Rect(0, 0, 2, 1) {
				t.Fatalf("Expected 2x1 bounds, got %v", img.Bounds())
			}
			if got := img.At(1, 0); got != tc.want {
				t.Fatalf("Expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestFrameImageEmpty(t *testing.T) {
	m := gocv.NewMat()
	defer m.Close()
	if _, err := frameImage(&m); err == nil {
		t.Fatal("Expected an error for an empty frame")
	}
}
