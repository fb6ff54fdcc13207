package session

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"regexp"

	"go.uber.org/zap"

	"github.com/mikeyg42/sketch-detector/internal/canvas"
	"github.com/mikeyg42/sketch-detector/internal/detection"
	"github.com/mikeyg42/sketch-detector/internal/media"
	"github.com/mikeyg42/sketch-detector/internal/recording"
	"github.com/mikeyg42/sketch-detector/internal/sampling"
	"github.com/mikeyg42/sketch-detector/internal/storage"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// State is a read-only view of the session for the UI
type State struct {
	ID         string               `json:"id"`
	Style      canvas.StyleState    `json:"style"`
	Mode       string               `json:"mode"`
	ImageURI   string               `json:"image_uri,omitempty"`
	Videos     []media.VideoState   `json:"videos"`
	Thresholds detection.Thresholds `json:"thresholds"`
	Detection  detection.GateStats  `json:"detection"`
	Sampling   sampling.Stats       `json:"sampling"`
	Recording  recording.Info       `json:"recording"`
	Bounds     Bounds               `json:"bounds"`
}

// Bounds are the config menu slider limits
type Bounds struct {
	MinLineWidth float64 `json:"min_line_width"`
	MaxLineWidth float64 `json:"max_line_width"`
	MinSize      int     `json:"min_size"`
	MaxWidth     int     `json:"max_width"`
	MaxHeight    int     `json:"max_height"`
	Step         int     `json:"step"`
}

func (s *Session) bounds() Bounds {
	c, v := s.cfg.Canvas, s.cfg.Viewport
	return Bounds{
		MinLineWidth: c.MinLineWidth,
		MaxLineWidth: c.MaxLineWidth,
		MinSize:      c.MinSize,
		MaxWidth:     int(float64(v.Width) * v.CanvasWidthFraction),
		MaxHeight:    v.Height,
		Step:         c.SizeStep,
	}
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return max(lo, min(v, hi))
}

// State returns a snapshot of the whole session
func (s *Session) State() (State, error) {
	var st State
	err := s.do(func() error {
		rec := s.recorder.Info()
		st = State{
			ID:         s.id,
			Style:      s.pair.Style(),
			Mode:       s.controller.Mode().String(),
			ImageURI:   s.controller.ImageURI(),
			Videos:     s.controller.Videos(),
			Thresholds: s.gate.Thresholds(),
			Detection:  s.gate.Stats(),
			Sampling:   s.controller.Sampler().Stats(),
			Recording:  rec,
			Bounds:     s.bounds(),
		}
		return nil
	})
	return st, err
}

// SetLineWidth sets the stroke width, clamped to the slider bounds
func (s *Session) SetLineWidth(w float64) error {
	return s.do(func() error {
		b := s.bounds()
		w = max(b.MinLineWidth, min(w, b.MaxLineWidth))
		s.pair.SetStroke(s.pair.Style().Color, w)
		return nil
	})
}

// SetColor sets the stroke color
func (s *Session) SetColor(c string) error {
	if !hexColor.MatchString(c) {
		return fmt.Errorf("%w: %q", ErrInvalidColor, c)
	}
	return s.do(func() error {
		s.pair.SetStroke(c, s.pair.Style().LineWidth)
		return nil
	})
}

// SetCanvasSize resizes the canvas from the config menu, clamped to the slider bounds
func (s *Session) SetCanvasSize(w, h int) error {
	b := s.bounds()
	return s.Resize(clampInt(w, b.MinSize, b.MaxWidth), clampInt(h, b.MinSize, b.MaxHeight))
}

// Resize resizes both surfaces keeping content centered and re-runs detection
func (s *Session) Resize(w, h int) error {
	return s.do(func() error {
		if !s.pair.Resize(w, h) {
			return nil
		}
		cw, ch := s.pair.Size()
		s.logger.Debug("Canvas resized", zap.Int("width", cw), zap.Int("height", ch))
		s.publish()
		s.gate.Run()
		return nil
	})
}

// Clear fills both surfaces with white and re-runs detection
func (s *Session) Clear() error {
	return s.do(func() error {
		s.pair.Clear()
		s.publish()
		s.gate.Run()
		return nil
	})
}

func (s *Session) canDraw() error {
	if a := s.controller.Active(); a != nil && media.Playing(a) {
		return ErrVideoPlaying
	}
	return nil
}

// BeginStroke starts a freehand stroke at p
func (s *Session) BeginStroke(p canvas.Point) error {
	return s.do(func() error {
		if err := s.canDraw(); err != nil {
			return err
		}
		s.stroking = true
		s.last = p
		return s.pair.Stroke(p, p)
	})
}

// StrokeTo extends the current stroke to p
func (s *Session) StrokeTo(p canvas.Point) error {
	return s.do(func() error {
		if !s.stroking {
			return ErrNoStroke
		}
		if err := s.canDraw(); err != nil {
			s.stroking = false
			return err
		}
		from := s.last
		s.last = p
		return s.pair.Stroke(from, p)
	})
}

// EndStroke finishes the stroke and runs detection on the result
func (s *Session) EndStroke() error {
	return s.do(func() error {
		if !s.stroking {
			return ErrNoStroke
		}
		s.stroking = false
		s.gate.Run()
		return nil
	})
}

// SetThresholds replaces the detection thresholds and runs one fresh cycle
func (s *Session) SetThresholds(th detection.Thresholds) error {
	if th.IoU < 0 || th.IoU > 1 || th.Score < 0 || th.Score > 1 || th.MaxBoxesPerClass <= 0 {
		return fmt.Errorf("invalid thresholds: %+v", th)
	}
	return s.do(func() error {
		s.gate.SetThresholds(th)
		return nil
	})
}

// Upload routes an uploaded file to the image or video source by MIME type
func (s *Session) Upload(ctx context.Context, name, mime, path string) error {
	switch media.KindForMIME(mime) {
	case media.KindImage:
		return s.LoadImage(ctx, path)
	case media.KindVideo:
		return s.LoadVideo(ctx, path)
	default:
		return fmt.Errorf("%w: %s (%s)", media.ErrUnsupportedMedia, name, mime)
	}
}

// LoadImage switches to a static image once uri has been decoded
func (s *Session) LoadImage(ctx context.Context, uri string) error {
	if err := s.checkSource(uri); err != nil {
		return err
	}
	return s.await(ctx, func(done func(error)) {
		s.stroking = false
		s.controller.LoadImage(uri, done)
	})
}

// LoadVideo binds uri to the uploaded video handle and starts it
func (s *Session) LoadVideo(ctx context.Context, uri string) error {
	if err := s.checkSource(uri); err != nil {
		return err
	}
	return s.await(ctx, func(done func(error)) {
		s.stroking = false
		s.controller.LoadVideo(uri, done)
	})
}

// AddExampleVideo registers an example video and waits for it to load
func (s *Session) AddExampleVideo(ctx context.Context, uri string) (string, error) {
	if err := s.checkSource(uri); err != nil {
		return "", err
	}
	var id string
	err := s.await(ctx, func(done func(error)) {
		id = s.controller.AddExampleVideo(uri, func(_ string, err error) { done(err) })
	})
	return id, err
}

// ActivateVideo applies the play/pause/switch rule to video id
func (s *Session) ActivateVideo(id string) error {
	return s.do(func() error {
		s.stroking = false
		return s.controller.Activate(id)
	})
}

// SaveSnapshot saves the current overlay as a PNG
func (s *Session) SaveSnapshot() (storage.Artifact, error) {
	var a storage.Artifact
	err := s.do(func() error {
		var buf bytes.Buffer
		if err := png.Encode(&buf, s.pair.Overlay().RGBA()); err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		a = s.save(storage.KindSnapshot, s.cfg.Recording.SnapshotName, "image/png", buf.Bytes())
		return nil
	})
	return a, err
}

// StartRecording starts capturing the overlay
func (s *Session) StartRecording() error {
	return s.do(s.recorder.Start)
}

// PauseRecording pauses capture
func (s *Session) PauseRecording() error {
	return s.do(s.recorder.Pause)
}

// ResumeRecording resumes capture
func (s *Session) ResumeRecording() error {
	return s.do(s.recorder.Resume)
}

// SaveRecording stops capture and saves the assembled video
func (s *Session) SaveRecording() error {
	return s.do(s.recorder.SaveAndStop)
}

// QuitRecording stops capture and discards it
func (s *Session) QuitRecording() error {
	return s.do(s.recorder.Quit)
}
