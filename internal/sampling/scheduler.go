// Package sampling feeds video frames into the drawing surface at a bounded rate.
package sampling

import "time"

// Timer is a pending callback that can be cancelled
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Implementations decide which goroutine f runs on;
// the session routes callbacks onto its event loop.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// PostScheduler fires real timers and hands the callback to post
type PostScheduler struct {
	Post func(func())
}

// AfterFunc implements Scheduler
func (s PostScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, func() { s.Post(f) })
}
