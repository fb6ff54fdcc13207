package recording

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/webm"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
)

const closeWait = 2 * time.Second

// chunkBuffer collects container bytes between timeslice flushes
type chunkBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed chan struct{}
	once   sync.Once
}

func newChunkBuffer() *chunkBuffer {
	return &chunkBuffer{closed: make(chan struct{})}
}

func (b *chunkBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Close is called by the container writer once the last track is closed
func (b *chunkBuffer) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

// take returns and clears the pending bytes
func (b *chunkBuffer) take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	b.buf.Reset()
	return out
}

// WebMRecorder writes overlay frames as Motion JPEG into a WebM container.
// Timecodes exclude time spent paused.
type WebMRecorder struct {
	tap     *FrameTap
	fps     int
	quality int
	onData  func([]byte)
	logger  *zap.Logger

	width, height int
	out           *chunkBuffer
	writer        webm.BlockWriteCloser

	mu          sync.Mutex
	paused      bool
	pausedAt    time.Time
	pausedTotal time.Duration
	started     time.Time
	frames      int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWebMFactory returns a Factory producing WebMRecorders
func NewWebMFactory(quality int, logger *zap.Logger) Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(tap *FrameTap, fps int, onData func([]byte)) (StreamRecorder, error) {
		if tap == nil {
			return nil, errors.New("capture stream unavailable")
		}
		frame, _ := tap.Latest()
		if frame == nil {
			return nil, errors.New("capture stream has no frames")
		}
		b := frame.Bounds()
		return &WebMRecorder{
			tap:     tap,
			fps:     fps,
			quality: quality,
			onData:  onData,
			logger:  logger.Named("webm"),
			width:   b.Dx(),
			height:  b.Dy(),
		}, nil
	}
}

// Start creates the container and begins capturing
func (r *WebMRecorder) Start(timeslice time.Duration) error {
	if r.stopCh != nil {
		return errors.New("recorder already started")
	}
	r.out = newChunkBuffer()

	ws, err := webm.NewSimpleBlockWriter(r.out,
		[]webm.TrackEntry{
			{
				Name:            "Video",
				TrackNumber:     1,
				TrackUID:        uint64(time.Now().UnixNano()),
				CodecID:         "V_MJPEG",
				TrackType:       1,
				DefaultDuration: uint64(time.Second / time.Duration(r.fps)),
				Video: &webm.Video{
					PixelWidth:  uint64(r.width),
					PixelHeight: uint64(r.height),
				},
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create WebM writer: %w", err)
	}
	r.writer = ws[0]
	r.started = time.Now()
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.run(timeslice)
	return nil
}

func (r *WebMRecorder) run(timeslice time.Duration) {
	defer close(r.doneCh)

	frameTicker := time.NewTicker(time.Second / time.Duration(r.fps))
	defer frameTicker.Stop()
	sliceTicker := time.NewTicker(timeslice)
	defer sliceTicker.Stop()

	r.capture()
	for {
		select {
		case <-r.stopCh:
			r.finish()
			return
		case <-frameTicker.C:
			r.capture()
		case <-sliceTicker.C:
			r.flush()
		}
	}
}

func (r *WebMRecorder) capture() {
	r.mu.Lock()
	if r.paused {
		r.mu.Unlock()
		return
	}
	tc := time.Since(r.started) - r.pausedTotal
	r.mu.Unlock()

	frame, _ := r.tap.Latest()
	if frame == nil {
		return
	}

	var img image.Image = frame
	if b := frame.Bounds(); b.Dx() != r.width || b.Dy() != r.height {
		scaled := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), frame, b, xdraw.Src, nil)
		img = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.quality}); err != nil {
		r.logger.Warn("Failed to encode frame", zap.Error(err))
		return
	}
	if _, err := r.writer.Write(true, tc.Milliseconds(), buf.Bytes()); err != nil {
		r.logger.Warn("Failed to write frame", zap.Error(err))
		return
	}
	r.frames++
}

func (r *WebMRecorder) flush() {
	if data := r.out.take(); len(data) > 0 {
		r.onData(data)
	}
}

func (r *WebMRecorder) finish() {
	if err := r.writer.Close(); err != nil {
		r.logger.Warn("Failed to close WebM writer", zap.Error(err))
	}
	select {
	case <-r.out.closed:
	case <-time.After(closeWait):
		r.logger.Warn("Timed out waiting for container to close")
	}
	r.flush()
	r.logger.Debug("Recorder stopped", zap.Int64("frames", r.frames))
}

// Pause stops capturing frames; paused time is excluded from timecodes
func (r *WebMRecorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paused {
		r.paused = true
		r.pausedAt = time.Now()
	}
	return nil
}

// Resume continues capturing
func (r *WebMRecorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		r.paused = false
		r.pausedTotal += time.Since(r.pausedAt)
	}
	return nil
}

// Stop closes the container and delivers the final chunk before returning
func (r *WebMRecorder) Stop() error {
	if r.stopCh == nil {
		return errors.New("recorder not started")
	}
	select {
	case <-r.doneCh:
		return nil
	default:
	}
	close(r.stopCh)
	<-r.doneCh
	return nil
}
