package asyncsink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/observability"
)

// ErrPoolClosed is returned by Submit after Shutdown
var ErrPoolClosed = errors.New("worker pool shut down")

// ErrQueueFull is returned by TrySubmit when no queue slot is free
var ErrQueueFull = errors.New("worker pool queue full")

// task is one unit of work. ctx is the caller's context: its values reach
// fn, its cancellation does not.
type task struct {
	ctx context.Context
	fn  func(ctx context.Context)
}

// workerPool runs tasks on a fixed number of goroutines with per-task
// timeouts and panic recovery.
type workerPool struct {
	workers int
	timeout time.Duration
	log     logrus.FieldLogger

	workCh chan task
	doneCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	closed   bool
	shutdown sync.Once

	panics atomic.Int64
}

func newWorkerPool(ctx context.Context, workers, queueSize int, timeout time.Duration, log logrus.FieldLogger) *workerPool {
	ctx, cancel := context.WithCancel(ctx)

	p := &workerPool{
		workers: workers,
		timeout: timeout,
		log:     log,
		workCh:  make(chan task, queueSize),
		doneCh:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				p.worker(id)
			}(i)
		}
		wg.Wait()
		close(p.doneCh)
	}()

	return p
}

// submit queues t, blocking while the queue is full
func (p *workerPool) submit(t task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- t:
		return nil
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// trySubmit queues t or returns ErrQueueFull immediately
func (p *workerPool) trySubmit(t task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// stop closes the queue and waits up to timeout for queued tasks to drain
func (p *workerPool) stop(timeout time.Duration) error {
	var err error

	p.shutdown.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.workCh)
		p.mu.Unlock()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			err = fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
	})

	return err
}

func (p *workerPool) worker(id int) {
	for {
		select {
		case <-p.ctx.Done():
			return

		case t, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(id, t)
		}
	}
}

func (p *workerPool) run(id int, t task) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), p.timeout)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()
	defer observability.RecoverPanicWithCallback(p.log.WithField("worker", id), "async analytics worker", func() {
		p.panics.Add(1)
	})

	t.fn(ctx)
}
