// Package fetchpool runs a job over an ordered batch of inputs with a
// sliding window of at most W jobs in flight.
package fetchpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// DefaultWindow is the number of jobs in flight when no window is configured.
const DefaultWindow = 10

// ErrClosed is returned by Map when the pool was closed before or during a
// run. The batch is lost; callers start a fresh one on a live pool.
var ErrClosed = errors.New("fetch pool is closed")

// Job processes one input. Failures belong in R; the pool never inspects them.
type Job[T, R any] func(ctx context.Context, in T) (T, R)

// Result pairs a job's output with the index of the input it came from.
type Result[T, R any] struct {
	Index int
	Input T
	Value R
}

// Pool carries the window size and the lifetime of its owner.
type Pool struct {
	window int
	closed atomic.Bool
	log    logrus.FieldLogger
}

// New creates a pool with the given window. A window below 1 falls back to
// DefaultWindow.
func New(window int, logger logrus.FieldLogger) *Pool {
	if window < 1 {
		window = DefaultWindow
	}
	return &Pool{
		window: window,
		log:    logger.WithField("component", "fetch_pool"),
	}
}

// Window returns the maximum number of jobs in flight.
func (p *Pool) Window() int {
	return p.window
}

// Close marks the pool as gone. Running batches stop scheduling and fail
// with ErrClosed once their in-flight jobs have drained.
func (p *Pool) Close() {
	if p.closed.CompareAndSwap(false, true) {
		p.log.Debug("Fetch pool closed")
	}
}

// Closed reports whether Close was called.
func (p *Pool) Closed() bool {
	return p.closed.Load()
}

// Map runs job over inputs. min(len(inputs), window) jobs start at once; each
// completion frees a slot for the next unscheduled index. Every input is
// processed exactly once and Map returns only after all jobs finished.
// The order of the returned results is unspecified; use Result.Index to
// recover submission order.
func Map[T, R any](ctx context.Context, p *Pool, inputs []T, job Job[T, R]) ([]Result[T, R], error) {
	if p.Closed() {
		return nil, ErrClosed
	}
	if len(inputs) == 0 {
		return []Result[T, R]{}, nil
	}

	log := p.log.WithFields(logrus.Fields{
		"inputs": len(inputs),
		"window": p.window,
	})
	log.Debug("Starting batch")

	var (
		mu      sync.Mutex
		results = make([]Result[T, R], 0, len(inputs))
	)

	workers := pool.New().WithMaxGoroutines(p.window)
	var stopErr error
	for i := range inputs {
		if p.Closed() {
			stopErr = ErrClosed
			break
		}
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}

		index, in := i, inputs[i]
		// Go blocks while the window is full, so index i+W is only
		// scheduled once one of the earlier jobs has returned.
		workers.Go(func() {
			out, value := job(ctx, in)
			mu.Lock()
			results = append(results, Result[T, R]{Index: index, Input: out, Value: value})
			mu.Unlock()
		})
	}
	workers.Wait()

	if stopErr == nil && p.Closed() {
		stopErr = ErrClosed
	}
	if stopErr != nil {
		log.WithError(stopErr).Warn("Batch aborted")
		return nil, stopErr
	}

	log.Debug("Batch drained")
	return results, nil
}
