package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrCoordinatorClosed is returned by Do once the coordinator has been closed.
var ErrCoordinatorClosed = errors.New("coordinator is closed")

type task struct {
	fn   func()
	done chan struct{}
}

// Coordinator runs closures one at a time on a single goroutine. The
// pipeline routes every store write and event publication through it so
// they never interleave.
type Coordinator struct {
	tasks     chan task
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	log       logrus.FieldLogger
}

// NewCoordinator starts the coordinator goroutine.
func NewCoordinator(logger logrus.FieldLogger) *Coordinator {
	c := &Coordinator{
		tasks:   make(chan task),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		log:     logger.WithField("component", "coordinator"),
	}
	go c.run()
	return c
}

func (c *Coordinator) run() {
	defer close(c.stopped)
	for {
		select {
		case t := <-c.tasks:
			t.fn()
			close(t.done)
		case <-c.quit:
			return
		}
	}
}

// Do runs fn on the coordinator goroutine and waits for it to return. It
// fails with ErrCoordinatorClosed if the coordinator is closed before fn was
// accepted, or with ctx.Err() if ctx ends first. An accepted fn always runs
// to completion. fn must not call Do.
func (c *Coordinator) Do(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case <-c.quit:
		return ErrCoordinatorClosed
	case <-ctx.Done():
		return ctx.Err()
	case c.tasks <- t:
	}
	<-t.done
	return nil
}

// Close stops the goroutine after the task it is running, if any. It is
// safe to call more than once.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.stopped
		c.log.Debug("Coordinator stopped")
	})
}
