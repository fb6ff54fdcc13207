package sampling

import (
	"image"
	"time"

	"go.uber.org/zap"
)

// Source is the video handle being sampled
type Source interface {
	Frame() image.Image
	Paused() bool
	Ended() bool
}

// Guard reports whether src is still the active video in video mode
type Guard func(src Source) bool

// Stats counts sampler activity
type Stats struct {
	Samples   int64
	Started   int64
	Cancelled int64
}

// Sampler is a cancellable periodic task. At most one timer is pending at a time
// and all methods must be called from the same goroutine the scheduler posts to.
type Sampler struct {
	sched    Scheduler
	interval time.Duration
	guard    Guard
	paint    func(image.Image)
	logger   *zap.Logger

	src     Source
	pending Timer
	gen     uint64
	stats   Stats
}

// New creates a sampler that paints frames through paint every interval while guard holds
func New(sched Scheduler, interval time.Duration, guard Guard, paint func(image.Image), logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{
		sched:    sched,
		interval: interval,
		guard:    guard,
		paint:    paint,
		logger:   logger.Named("sampler"),
	}
}

// Start cancels any pending tick and samples src immediately
func (s *Sampler) Start(src Source) {
	s.Cancel()
	s.src = src
	s.stats.Started++
	s.tick(s.gen)
}

// Cancel clears the pending tick, if any
func (s *Sampler) Cancel() {
	s.gen++
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
		s.stats.Cancelled++
	}
	s.src = nil
}

// Active reports whether a tick is scheduled
func (s *Sampler) Active() bool { return s.pending != nil }

// Stats returns a copy of the counters
func (s *Sampler) Stats() Stats { return s.stats }

func (s *Sampler) tick(gen uint64) {
	// A timer that fired after Cancel or a newer Start belongs to an older task
	if gen != s.gen {
		return
	}
	s.pending = nil

	src := s.src
	if src == nil || !s.guard(src) {
		s.src = nil
		return
	}

	if frame := src.Frame(); frame != nil {
		s.stats.Samples++
		s.paint(frame)
	}

	// paint may have triggered work that cancelled or restarted sampling
	if gen != s.gen {
		return
	}
	if src.Paused() || src.Ended() {
		s.logger.Debug("Sampling stopped", zap.Bool("paused", src.Paused()), zap.Bool("ended", src.Ended()))
		s.src = nil
		return
	}
	s.pending = s.sched.AfterFunc(s.interval, func() { s.tick(gen) })
}
