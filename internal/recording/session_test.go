package recording

import (
	"bytes"
	"errors"
	"image"
	"testing"
	"time"
)

// scriptedRecorder lets the test emit chunks and records lifecycle calls
type scriptedRecorder struct {
	onData   func([]byte)
	calls    []string
	final    []byte
	startErr error
}

func (r *scriptedRecorder) Start(time.Duration) error {
	r.calls = append(r.calls, "start")
	return r.startErr
}

func (r *scriptedRecorder) Pause() error {
	r.calls = append(r.calls, "pause")
	return nil
}

func (r *scriptedRecorder) Resume() error {
	r.calls = append(r.calls, "resume")
	return nil
}

func (r *scriptedRecorder) Stop() error {
	r.calls = append(r.calls, "stop")
	if r.final != nil {
		r.onData(r.final)
	}
	return nil
}

type saved struct {
	name, mime string
	data       []byte
}

type sessionHarness struct {
	session *Session
	rec     *scriptedRecorder
	saves   []saved
}

func newSessionHarness(factoryErr error) *sessionHarness {
	h := &sessionHarness{rec: &scriptedRecorder{}}
	h.session = NewSession(Config{
		Factory: func(_ *FrameTap, fps int, onData func([]byte)) (StreamRecorder, error) {
			if factoryErr != nil {
				return nil, factoryErr
			}
			h.rec.onData = onData
			return h.rec, nil
		},
		Tap:       NewFrameTap(),
		FrameRate: 30,
		Timeslice: time.Second,
		FileName:  "predictions.webm",
		MimeType:  "video/webm",
		Save: func(name, mime string, data []byte) {
			h.saves = append(h.saves, saved{name, mime, data})
		},
	})
	return h
}

func TestRecordingRoundTrip(t *testing.T) {
	h := newSessionHarness(nil)
	s := h.session

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.rec.onData([]byte("aa"))
	h.rec.onData([]byte("bb"))
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	h.rec.onData([]byte("cc"))
	h.rec.final = []byte("dd")

	if err := s.SaveAndStop(); err != nil {
		t.Fatalf("SaveAndStop failed: %v", err)
	}

	if len(h.saves) != 1 {
		t.Fatalf("Expected exactly one save, got %d", len(h.saves))
	}
	got := h.saves[0]
	if got.name != "predictions.webm" || got.mime != "video/webm" {
		t.Fatalf("Unexpected file %s (%s)", got.name, got.mime)
	}
	if !bytes.Equal(got.data, []byte("aabbccdd")) {
		t.Fatalf("Expected chunks in order, got %q", got.data)
	}
	if s.State() != StateIdle {
		t.Fatalf("Expected idle after save, got %v", s.State())
	}
}

func TestSaveWhilePausedResumesFirst(t *testing.T) {
	h := newSessionHarness(nil)
	s := h.session

	s.Start()
	s.Pause()
	if err := s.SaveAndStop(); err != nil {
		t.Fatalf("SaveAndStop failed: %v", err)
	}

	want := []string{"start", "pause", "resume", "stop"}
	if len(h.rec.calls) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, h.rec.calls)
	}
	for i := range want {
		if h.rec.calls[i] != want[i] {
			t.Fatalf("Expected calls %v, got %v", want, h.rec.calls)
		}
	}
}

func TestQuitDiscards(t *testing.T) {
	h := newSessionHarness(nil)
	s := h.session

	s.Start()
	h.rec.onData([]byte("secret"))
	if err := s.Quit(); err != nil {
		t.Fatalf("Quit failed: %v", err)
	}

	if len(h.saves) != 0 {
		t.Fatal("Expected quit not to save")
	}
	if s.State() != StateIdle {
		t.Fatalf("Expected idle after quit, got %v", s.State())
	}
	if info := s.Info(); info.Chunks != 0 || info.Bytes != 0 {
		t.Fatalf("Expected chunks to be discarded, got %+v", info)
	}

	// Late data after release is ignored
	h.rec.onData([]byte("late"))
	if info := s.Info(); info.Chunks != 0 {
		t.Fatalf("Expected late chunk to be dropped, got %+v", info)
	}
}

func TestInvalidTransitions(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(*Session)
		op    func(*Session) error
	}{
		{"Pause while idle", func(*Session) {}, (*Session).Pause},
		{"Resume while idle", func(*Session) {}, (*Session).Resume},
		{"Save while idle", func(*Session) {}, (*Session).SaveAndStop},
		{"Quit while idle", func(*Session) {}, (*Session).Quit},
		{"Start twice", func(s *Session) { s.Start() }, (*Session).Start},
		{"Resume while recording", func(s *Session) { s.Start() }, (*Session).Resume},
		{"Pause while paused", func(s *Session) { s.Start(); s.Pause() }, (*Session).Pause},
		{"Start while paused", func(s *Session) { s.Start(); s.Pause() }, (*Session).Start},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newSessionHarness(nil)
			tc.setup(h.session)
			before := h.session.State()

			if err := tc.op(h.session); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("Expected ErrInvalidTransition, got %v", err)
			}
			if h.session.State() != before {
				t.Fatalf("State changed from %v to %v", before, h.session.State())
			}
		})
	}
}

func TestStartFailureLeavesIdle(t *testing.T) {
	testCases := []struct {
		name       string
		factoryErr error
		startErr   error
	}{
		{"Capture unsupported", errors.New("no capture"), nil},
		{"Recorder start fails", nil, errors.New("codec busy")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newSessionHarness(tc.factoryErr)
			h.rec.startErr = tc.startErr

			if err := h.session.Start(); err == nil {
				t.Fatal("Expected start error")
			}
			if h.session.State() != StateIdle {
				t.Fatalf("Expected idle, got %v", h.session.State())
			}
			if info := h.session.Info(); info.ID != "" {
				t.Fatalf("Expected no partial session, got %+v", info)
			}
		})
	}
}

func TestFrameTapKeepsLatest(t *testing.T) {
	tap := NewFrameTap()
	if f, _ := tap.Latest(); f != nil {
		t.Fatal("Expected empty tap")
	}

	var notified int
	unsubscribe := tap.Subscribe(func(*image.RGBA) { notified++ })

	a := image.NewRGBA(image.Rect(0, 0, 2, 2))
	b := image.NewRGBA(image.Rect(0, 0, 3, 3))
	tap.Publish(a)
	tap.Publish(b)

	f, seq := tap.Latest()
	if f.Bounds() != b.Bounds() || seq != 2 {
		t.Fatalf("Expected latest frame 3x3 at seq 2, got %v at %d", f.Bounds(), seq)
	}
	if f == b {
		t.Fatal("Expected the tap to hold a copy")
	}

	unsubscribe()
	tap.Publish(a)
	if notified != 2 {
		t.Fatalf("Expected 2 notifications before unsubscribe, got %d", notified)
	}
}
