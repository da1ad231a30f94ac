// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package persist

import (
	"sync"
	"time"

	"grimm.is/airwall/internal/logging"
)

// DefaultDebounce is how long a scheduled write waits for further
// changes before hitting storage. A burst of updates costs one write.
const DefaultDebounce = 10 * time.Second

// Scheduler coalesces write requests. Schedule arms a single timer;
// FlushNow writes immediately and disarms it. The flush callback is
// never run concurrently with itself.
type Scheduler struct {
	delay  time.Duration
	flush  func() error
	logger *logging.Logger

	mu      sync.Mutex // guards timer and stopped
	timer   *time.Timer
	stopped bool

	flushMu sync.Mutex // serializes flush callbacks
}

// NewScheduler creates a scheduler around the given flush callback. A
// non-positive delay falls back to DefaultDebounce.
func NewScheduler(delay time.Duration, flush func() error) *Scheduler {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Scheduler{
		delay:  delay,
		flush:  flush,
		logger: logging.WithComponent("persist"),
	}
}

// Schedule requests a write after the debounce delay. Calls while a
// write is already pending coalesce into it.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	s.timer = nil
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	if err := s.runFlush(); err != nil {
		s.logger.Error("scheduled write failed", "error", err)
	}
}

// FlushNow cancels any pending timer and writes synchronously.
func (s *Scheduler) FlushNow() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.runFlush()
}

func (s *Scheduler) runFlush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.flush()
}

// Stop flushes any pending write and refuses further scheduling.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	pending := s.timer != nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.stopped = true
	s.mu.Unlock()
	if pending {
		return s.runFlush()
	}
	return nil
}

// Pending reports whether a write is currently scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
