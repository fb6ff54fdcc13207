package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"
)

func TestKindForMIME(t *testing.T) {
	testCases := []struct {
		mime string
		want Kind
	}{
		{"image/png", KindImage},
		{"image/webp", KindImage},
		{"video/mp4", KindVideo},
		{"VIDEO/WEBM", KindVideo},
		{"application/pdf", KindUnsupported},
		{"", KindUnsupported},
	}

	for _, tc := range testCases {
		t.Run(tc.mime, func(t *testing.T) {
			if got := KindForMIME(tc.mime); got != tc.want {
				t.Fatalf("Expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDisplaySize(t *testing.T) {
	testCases := []struct {
		name         string
		w, h         int
		viewport     int
		wantW, wantH int
	}{
		{"Fits", 320, 240, 1000, 320, 240},
		{"Capped", 800, 600, 1000, 400, 300},
		{"Portrait capped", 1000, 2000, 1000, 400, 800},
		{"No viewport", 800, 600, 0, 800, 600},
		{"Unknown size", 0, 0, 1000, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := newFakeVideo("v", tc.w, tc.h)
			w, h := DisplaySize(v, tc.viewport, 0.4)
			if w != tc.wantW || h != tc.wantH {
				t.Fatalf("Expected %dx%d, got %dx%d", tc.wantW, tc.wantH, w, h)
			}
		})
	}
}

func TestActivateStartsVideo(t *testing.T) {
	h := newHarness(nil, nil)
	a := newFakeVideo("a", 800, 600)
	h.ctrl.AddVideo(a)

	if err := h.ctrl.Activate("a"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	if h.ctrl.Mode() != ModeVideo {
		t.Fatalf("Expected video mode, got %v", h.ctrl.Mode())
	}
	if !Playing(a) {
		t.Fatal("Expected video to be playing")
	}
	if len(h.pipeline.resizes) != 1 || h.pipeline.resizes[0] != image.Pt(400, 300) {
		t.Fatalf("Expected a single resize to 400x300, got %v", h.pipeline.resizes)
	}
	if len(h.pipeline.frames) != 1 {
		t.Fatalf("Expected an immediate sample, got %d", len(h.pipeline.frames))
	}
	if h.ctrl.Icon("a") != IconPause {
		t.Fatalf("Expected pause icon while playing, got %v", h.ctrl.Icon("a"))
	}
}

func TestActivateTogglesActiveVideo(t *testing.T) {
	h := newHarness(nil, nil)
	a := newFakeVideo("a", 100, 100)
	h.ctrl.AddVideo(a)

	steps := []struct {
		name        string
		wantPlaying bool
		wantSampler bool
	}{
		{"First click starts", true, true},
		{"Second click pauses", false, false},
		{"Third click resumes", true, true},
	}

	for _, step := range steps {
		if err := h.ctrl.Activate("a"); err != nil {
			t.Fatalf("%s: Activate failed: %v", step.name, err)
		}
		if Playing(a) != step.wantPlaying {
			t.Fatalf("%s: expected playing=%v", step.name, step.wantPlaying)
		}
		if h.ctrl.Sampler().Active() != step.wantSampler {
			t.Fatalf("%s: expected sampler active=%v", step.name, step.wantSampler)
		}
	}
}

func TestActivateRestartsEndedVideo(t *testing.T) {
	h := newHarness(nil, nil)
	a := newFakeVideo("a", 100, 100)
	h.ctrl.AddVideo(a)

	h.ctrl.Activate("a")
	a.ended = true
	a.emit(EventEnded)
	if h.ctrl.Icon("a") != IconPlay {
		t.Fatal("Expected play icon after the video ended")
	}

	if err := h.ctrl.Activate("a"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if !Playing(a) {
		t.Fatal("Expected ended video to restart")
	}
}

func TestAtMostOneVideoPlays(t *testing.T) {
	h := newHarness(stubLoader(solid(30, 20, color.RGBA{R: 255, A: 255}), nil), nil)
	videos := []*fakeVideo{
		newFakeVideo("a", 100, 100),
		newFakeVideo("b", 200, 100),
		newFakeVideo("c", 100, 200),
	}
	for _, v := range videos {
		h.ctrl.AddVideo(v)
	}

	// "img" loads an image to completion; anything else clicks that video
	clicks := []string{"a", "b", "img", "b", "c", "a", "img", "img", "a", "b", "c", "img", "c", "c"}
	for _, id := range clicks {
		if id == "img" {
			var loadErr error
			h.ctrl.LoadImage("pic.png", func(err error) { loadErr = err })
			h.loop.runOne(t)
			if loadErr != nil {
				t.Fatalf("LoadImage failed: %v", loadErr)
			}
		} else if err := h.ctrl.Activate(id); err != nil {
			t.Fatalf("Activate(%s) failed: %v", id, err)
		}

		if n := h.ctrl.PlayingCount(); n > 1 {
			t.Fatalf("After %s, %d videos are playing", id, n)
		}
		if h.ctrl.Mode() == ModeStaticImage && h.ctrl.PlayingCount() != 0 {
			t.Fatalf("After %s, a video plays in image mode", id)
		}
		for _, v := range videos {
			if Playing(v) && h.ctrl.Active() != Video(v) {
				t.Fatalf("Video %s plays but is not active", v.id)
			}
		}
	}
}

func TestActivatePlayFailureKeepsState(t *testing.T) {
	t.Run("Switch from a playing video", func(t *testing.T) {
		h := newHarness(nil, nil)
		a := newFakeVideo("a", 320, 240)
		b := newFakeVideo("b", 800, 600)
		b.playErr = errors.New("rewind failed")
		h.ctrl.AddVideo(a)
		h.ctrl.AddVideo(b)

		if err := h.ctrl.Activate("a"); err != nil {
			t.Fatalf("Activate(a) failed: %v", err)
		}
		resizes := len(h.pipeline.resizes)

		if err := h.ctrl.Activate("b"); err == nil {
			t.Fatal("Expected Activate(b) to fail")
		}
		if !Playing(a) {
			t.Fatal("Expected video A to keep playing")
		}
		if h.ctrl.Active() != Video(a) {
			t.Fatal("Expected A to stay active")
		}
		if !h.ctrl.Sampler().Active() {
			t.Fatal("Expected sampling of A to continue")
		}
		if len(h.pipeline.resizes) != resizes {
			t.Fatalf("Expected no resize, got %v", h.pipeline.resizes)
		}
	})

	t.Run("From image mode", func(t *testing.T) {
		h := newHarness(stubLoader(solid(30, 20, color.RGBA{A: 255}), nil), nil)
		c := newFakeVideo("c", 800, 600)
		c.playErr = errors.New("source closed")
		h.ctrl.AddVideo(c)

		h.ctrl.LoadImage("cat.png", nil)
		h.loop.runOne(t)

		if err := h.ctrl.Activate("c"); err == nil {
			t.Fatal("Expected Activate(c) to fail")
		}
		if h.ctrl.Mode() != ModeStaticImage || h.ctrl.ImageURI() != "cat.png" {
			t.Fatalf("Expected image mode for cat.png, got %v %q", h.ctrl.Mode(), h.ctrl.ImageURI())
		}
		if h.ctrl.Active() != nil {
			t.Fatal("Expected no active video")
		}
		if len(h.pipeline.resizes) != 0 {
			t.Fatalf("Expected no resize, got %v", h.pipeline.resizes)
		}
	})
}

func TestSwitchVideoScenario(t *testing.T) {
	h := newHarness(nil, nil)
	a := newFakeVideo("a", 100, 100)
	b := newFakeVideo("b", 100, 100)
	b.frame = solid(100, 100, color.RGBA{G: 255, A: 255})
	h.ctrl.AddVideo(a)
	h.ctrl.AddVideo(b)

	h.ctrl.Activate("a")
	h.clock.Advance(200 * time.Millisecond)
	fromA := len(h.pipeline.frames)

	h.ctrl.Activate("b")
	if !a.paused {
		t.Fatal("Expected video A to be paused")
	}
	if !Playing(b) {
		t.Fatal("Expected video B to be playing")
	}
	if len(h.pipeline.frames) != fromA+1 || h.pipeline.frames[fromA] != b.frame {
		t.Fatal("Expected B to be sampled immediately")
	}

	h.clock.Advance(60 * time.Millisecond)
	if len(h.pipeline.frames) != fromA+1 {
		t.Fatal("Expected no sample before the next tick")
	}
	h.clock.Advance(10 * time.Millisecond)
	if len(h.pipeline.frames) != fromA+2 {
		t.Fatalf("Expected B's second sample at ~66ms, got %d frames", len(h.pipeline.frames)-fromA)
	}
	for _, f := range h.pipeline.frames[fromA:] {
		if f == a.frame {
			t.Fatal("Video A was sampled after the switch")
		}
	}
}

func TestActivateUnknownAndUnloaded(t *testing.T) {
	h := newHarness(nil, nil)
	if err := h.ctrl.Activate("missing"); !errors.Is(err, ErrUnknownVideo) {
		t.Fatalf("Expected ErrUnknownVideo, got %v", err)
	}
	if err := h.ctrl.Activate(UploadedVideoID); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("Expected ErrNotLoaded, got %v", err)
	}
	if h.ctrl.Mode() != ModeIdle {
		t.Fatalf("Expected idle mode to be untouched, got %v", h.ctrl.Mode())
	}
}

func TestLoadImagePausesVideo(t *testing.T) {
	h := newHarness(stubLoader(solid(30, 20, color.RGBA{R: 255, A: 255}), nil), nil)
	a := newFakeVideo("a", 100, 100)
	h.ctrl.AddVideo(a)
	h.ctrl.Activate("a")

	var loadErr error
	h.ctrl.LoadImage("cat.png", func(err error) { loadErr = err })
	h.loop.runOne(t)

	if loadErr != nil {
		t.Fatalf("LoadImage failed: %v", loadErr)
	}
	if h.ctrl.Mode() != ModeStaticImage || h.ctrl.ImageURI() != "cat.png" {
		t.Fatalf("Expected image mode for cat.png, got %v %q", h.ctrl.Mode(), h.ctrl.ImageURI())
	}
	if Playing(a) {
		t.Fatal("Expected video to be paused in image mode")
	}
	if h.ctrl.Sampler().Active() {
		t.Fatal("Expected sampling to stop in image mode")
	}
	if h.pipeline.images != 1 {
		t.Fatalf("Expected one image paint, got %d", h.pipeline.images)
	}
}

func TestLoadImageFailureKeepsState(t *testing.T) {
	h := newHarness(stubLoader(nil, errors.New("corrupt")), nil)
	a := newFakeVideo("a", 100, 100)
	h.ctrl.AddVideo(a)
	h.ctrl.Activate("a")

	var loadErr error
	h.ctrl.LoadImage("bad.png", func(err error) { loadErr = err })
	h.loop.runOne(t)

	if loadErr == nil {
		t.Fatal("Expected load error")
	}
	if h.ctrl.Mode() != ModeVideo || !Playing(a) {
		t.Fatal("Expected the playing video to be untouched")
	}
	if h.pipeline.images != 0 {
		t.Fatal("Expected no image paint")
	}
}

func TestLoadImageSupersededByVideo(t *testing.T) {
	h := newHarness(stubLoader(solid(30, 20, color.RGBA{A: 255}), nil), nil)
	a := newFakeVideo("a", 100, 100)
	h.ctrl.AddVideo(a)

	var loadErr error
	h.ctrl.LoadImage("slow.png", func(err error) { loadErr = err })
	h.ctrl.Activate("a")
	h.loop.runOne(t)

	if !errors.Is(loadErr, ErrSuperseded) {
		t.Fatalf("Expected ErrSuperseded, got %v", loadErr)
	}
	if h.ctrl.Mode() != ModeVideo {
		t.Fatalf("Expected video mode to win, got %v", h.ctrl.Mode())
	}
}

func TestLoadVideoActivatesUploaded(t *testing.T) {
	src := newFrameSource(3, 1000)
	h := newHarness(nil, func(_ context.Context, uri string) (FrameSource, error) { return src, nil })
	defer h.ctrl.Close()

	a := newFakeVideo("a", 100, 100)
	h.ctrl.AddVideo(a)
	h.ctrl.Activate("a")

	var loadErr error
	loaded := false
	h.ctrl.LoadVideo("clip.mp4", func(err error) { loadErr = err; loaded = true })
	if Playing(a) {
		t.Fatal("Expected LoadVideo to pause the active video immediately")
	}
	for !loaded {
		h.loop.runOne(t)
	}

	if loadErr != nil {
		t.Fatalf("LoadVideo failed: %v", loadErr)
	}
	active := h.ctrl.Active()
	if active == nil || active.ID() != UploadedVideoID {
		t.Fatalf("Expected uploaded video to be active, got %v", active)
	}
	if h.ctrl.Mode() != ModeVideo {
		t.Fatalf("Expected video mode, got %v", h.ctrl.Mode())
	}

	var uploaded VideoState
	for _, vs := range h.ctrl.Videos() {
		if vs.ID == UploadedVideoID {
			uploaded = vs
		}
	}
	if !uploaded.Visible || uploaded.URI != "clip.mp4" {
		t.Fatalf("Expected visible uploaded player for clip.mp4, got %+v", uploaded)
	}
	if h.ctrl.PlayingCount() > 1 {
		t.Fatal("More than one video playing after upload")
	}
}

func TestLoadVideoOpenFailure(t *testing.T) {
	h := newHarness(nil, func(context.Context, string) (FrameSource, error) {
		return nil, errors.New("no codec")
	})
	defer h.ctrl.Close()

	var loadErr error
	h.ctrl.LoadVideo("broken.mp4", func(err error) { loadErr = err })
	h.loop.runOne(t)

	if loadErr == nil {
		t.Fatal("Expected open error")
	}
	if h.ctrl.Active() != nil || h.ctrl.Mode() != ModeIdle {
		t.Fatal("Expected no active video after a failed upload")
	}
	for _, vs := range h.ctrl.Videos() {
		if vs.ID == UploadedVideoID && vs.Visible {
			t.Fatal("Expected the uploaded player to stay hidden after a failed upload")
		}
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	h := newHarness(nil, nil)
	a := newFakeVideo("a", 10, 10)
	h.ctrl.AddVideo(a)
	if len(a.subs) != 1 {
		t.Fatalf("Expected one subscription, got %d", len(a.subs))
	}

	h.ctrl.Close()
	if len(a.subs) != 0 {
		t.Fatalf("Expected subscriptions to be removed on close, got %d", len(a.subs))
	}
}
