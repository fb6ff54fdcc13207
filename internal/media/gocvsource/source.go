// Package gocvsource decodes video files with OpenCV.
package gocvsource

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"gocv.io/x/gocv"

	"github.com/mikeyg42/sketch-detector/internal/media"
)

// Source is a media.FrameSource over a gocv VideoCapture
type Source struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	fps    float64
	width  int
	height int
}

// Open implements media.Opener
func Open(ctx context.Context, uri string) (media.FrameSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := media.LocalPath(uri)
	if err != nil {
		return nil, err
	}

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("gocvsource: failed to open %s: %w", uri, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("gocvsource: %s could not be opened", uri)
	}

	return &Source{
		vc:     vc,
		mat:    gocv.NewMat(),
		fps:    vc.Get(gocv.VideoCaptureFPS),
		width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
	}, nil
}

// Next decodes the next frame, returning io.EOF at the end of the stream
func (s *Source) Next() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc == nil {
		return nil, io.EOF
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, io.EOF
	}
	return frameImage(&s.mat)
}

// Rewind seeks back to the first frame
func (s *Source) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vc == nil {
		return fmt.Errorf("gocvsource: source closed")
	}
	s.vc.Set(gocv.VideoCapturePosFrames, 0)
	return nil
}

func (s *Source) FPS() float64     { return s.fps }
func (s *Source) Size() (int, int) { return s.width, s.height }

// Close releases the capture and the frame buffer
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vc == nil {
		return nil
	}
	err := s.vc.Close()
	s.vc = nil
	s.mat.Close()
	return err
}

// frameImage copies a decoded Mat into a Go image. ToImage converts BGR and
// BGRA frames to RGBA and keeps gray frames gray.
func frameImage(m *gocv.Mat) (image.Image, error) {
	if m.Empty() {
		return nil, fmt.Errorf("gocvsource: empty frame")
	}
	img, err := m.ToImage()
	if err != nil {
		return nil, fmt.Errorf("gocvsource: failed to convert frame: %w", err)
	}
	return img, nil
}
