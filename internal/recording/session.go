// Package recording captures the overlay surface into a downloadable video.
package recording

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the recording session state
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// ErrInvalidTransition is returned for an operation not allowed in the current state
var ErrInvalidTransition = errors.New("invalid recording transition")

// StreamRecorder encodes a capture stream and emits data every timeslice
type StreamRecorder interface {
	Start(timeslice time.Duration) error
	Pause() error
	Resume() error
	// Stop flushes the remaining data through onData before returning
	Stop() error
}

// Factory creates a recorder over tap at fps, delivering encoded chunks to onData
type Factory func(tap *FrameTap, fps int, onData func([]byte)) (StreamRecorder, error)

// SaveFunc hands an assembled file to the save primitive
type SaveFunc func(name, contentType string, data []byte)

// Config wires a Session
type Config struct {
	Factory   Factory
	Tap       *FrameTap
	FrameRate int
	Timeslice time.Duration
	FileName  string
	MimeType  string
	Save      SaveFunc
	Logger    *zap.Logger
}

// Info describes the current session for the UI
type Info struct {
	ID        string    `json:"id,omitempty"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Chunks    int       `json:"chunks"`
	Bytes     int       `json:"bytes"`
}

// Session is the Idle -> Recording <-> Paused -> Idle state machine.
// Transitions must be called from one goroutine; chunk delivery may come from any.
type Session struct {
	cfg    Config
	logger *zap.Logger

	state     State
	rec       StreamRecorder
	id        string
	startedAt time.Time

	mu     sync.Mutex
	chunks [][]byte // nil while idle
	size   int
}

// NewSession creates an idle session
func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = time.Second
	}
	return &Session{cfg: cfg, logger: cfg.Logger.Named("recording")}
}

// State returns the current state
func (s *Session) State() State { return s.state }

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.id,
		State:     s.state.String(),
		StartedAt: s.startedAt,
		Chunks:    len(s.chunks),
		Bytes:     s.size,
	}
}

func (s *Session) onData(data []byte) {
	if len(data) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks == nil {
		return
	}
	s.chunks = append(s.chunks, data)
	s.size += len(data)
}

// Start opens the capture stream and begins recording
func (s *Session) Start() error {
	if s.state != StateIdle {
		return fmt.Errorf("%w: start while %s", ErrInvalidTransition, s.state)
	}

	s.mu.Lock()
	s.chunks = make([][]byte, 0, 8)
	s.size = 0
	s.mu.Unlock()

	rec, err := s.cfg.Factory(s.cfg.Tap, s.cfg.FrameRate, s.onData)
	if err == nil {
		err = rec.Start(s.cfg.Timeslice)
	}
	if err != nil {
		s.release()
		return fmt.Errorf("failed to start recorder: %w", err)
	}

	s.rec = rec
	s.id = uuid.New().String()
	s.startedAt = time.Now()
	s.state = StateRecording
	s.logger.Info("Recording started", zap.String("recording_id", s.id))
	return nil
}

// Pause suspends capture
func (s *Session) Pause() error {
	if s.state != StateRecording {
		return fmt.Errorf("%w: pause while %s", ErrInvalidTransition, s.state)
	}
	if err := s.rec.Pause(); err != nil {
		return fmt.Errorf("failed to pause recorder: %w", err)
	}
	s.state = StatePaused
	return nil
}

// Resume continues a paused recording
func (s *Session) Resume() error {
	if s.state != StatePaused {
		return fmt.Errorf("%w: resume while %s", ErrInvalidTransition, s.state)
	}
	if err := s.rec.Resume(); err != nil {
		return fmt.Errorf("failed to resume recorder: %w", err)
	}
	s.state = StateRecording
	return nil
}

// SaveAndStop finishes the recording, assembles every chunk into one file and saves it
func (s *Session) SaveAndStop() error {
	if s.state == StateIdle {
		return fmt.Errorf("%w: save while idle", ErrInvalidTransition)
	}
	if s.state == StatePaused {
		if err := s.Resume(); err != nil {
			return err
		}
	}

	stopErr := s.rec.Stop()

	s.mu.Lock()
	data := bytes.Join(s.chunks, nil)
	chunks := len(s.chunks)
	s.mu.Unlock()

	id := s.id
	s.release()

	if stopErr != nil {
		return fmt.Errorf("failed to stop recorder: %w", stopErr)
	}

	s.logger.Info("Recording saved",
		zap.String("recording_id", id),
		zap.Int("chunks", chunks),
		zap.Int("bytes", len(data)))
	if s.cfg.Save != nil {
		s.cfg.Save(s.cfg.FileName, s.cfg.MimeType, data)
	}
	return nil
}

// Quit stops the recording and discards everything captured
func (s *Session) Quit() error {
	if s.state == StateIdle {
		return fmt.Errorf("%w: quit while idle", ErrInvalidTransition)
	}
	err := s.rec.Stop()
	id := s.id
	s.release()
	s.logger.Info("Recording discarded", zap.String("recording_id", id))
	if err != nil {
		return fmt.Errorf("failed to stop recorder: %w", err)
	}
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.chunks = nil
	s.size = 0
	s.mu.Unlock()

	s.rec = nil
	s.id = ""
	s.startedAt = time.Time{}
	s.state = StateIdle
}
