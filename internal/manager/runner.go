// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package manager

import (
	"context"

	"grimm.is/airwall/internal/errors"
	"grimm.is/airwall/internal/logging"
)

// Runner serializes all Manager access onto one goroutine. Callers
// submit closures with Do and block until the closure has run, so every
// operation observes a consistent registry without the Manager taking
// locks.
type Runner struct {
	mgr    *Manager
	reqs   chan request
	done   chan struct{}
	logger *logging.Logger
}

type request struct {
	fn   func(*Manager)
	done chan struct{}
}

// NewRunner creates a runner for the manager.
func NewRunner(mgr *Manager) *Runner {
	return &Runner{
		mgr:    mgr,
		reqs:   make(chan request),
		done:   make(chan struct{}),
		logger: logging.WithComponent("runner"),
	}
}

// Run processes requests until ctx is canceled. It is the only
// goroutine that ever touches the Manager.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)
	r.logger.Debug("runner started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("runner stopping")
			return
		case req := <-r.reqs:
			req.fn(r.mgr)
			close(req.done)
		}
	}
}

// Do runs fn on the manager goroutine and waits for it to finish.
// Returns an error only when the runner shut down before fn ran.
func (r *Runner) Do(ctx context.Context, fn func(*Manager)) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case r.reqs <- req:
	case <-r.done:
		return errors.New(errors.KindUnavailable, "registry is shut down")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.KindUnavailable, "registry request canceled")
	}
	select {
	case <-req.done:
		return nil
	case <-r.done:
		return errors.New(errors.KindUnavailable, "registry shut down mid-request")
	}
}
