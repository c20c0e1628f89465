package worker

import (
	"context"
	"errors"
	"sync"
)

const defaultQueueSize = 64

var ErrStopped = errors.New("worker pool stopped")

type StartOptions[J any] struct {
	Ctx         context.Context
	Concurrency int
	QueueSize   int
	Handle      func(context.Context, J)
}

// Pool runs Handle for queued jobs with at most Concurrency in flight.
// Handlers receive Ctx. When Ctx is done, queued jobs are dropped; after
// Stop, queued jobs still run and Ctx is left to the caller.
type Pool[J any] struct {
	ctx    context.Context
	jobs   chan J
	sem    chan struct{}
	handle func(context.Context, J)
	wg     sync.WaitGroup

	stop     chan struct{}
	stopOnce sync.Once
}

func Start[J any](opts StartOptions[J]) *Pool[J] {
	ctx := opts.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	queue := opts.QueueSize
	if queue <= 0 {
		queue = defaultQueueSize
	}
	p := &Pool[J]{
		ctx:    ctx,
		jobs:   make(chan J, queue),
		sem:    make(chan struct{}, concurrency),
		handle: opts.Handle,
		stop:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.dispatch()
	return p
}

func (p *Pool[J]) dispatch() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.stop:
			for {
				select {
				case job := <-p.jobs:
					if !p.run(job) {
						return
					}
				default:
					return
				}
			}
		case job := <-p.jobs:
			if !p.run(job) {
				return
			}
		}
	}
}

func (p *Pool[J]) run(job J) bool {
	select {
	case p.sem <- struct{}{}:
	case <-p.ctx.Done():
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		p.handle(p.ctx, job)
	}()
	return true
}

// Enqueue blocks until the job is queued, the pool is stopped, or either
// context is done.
func (p *Pool[J]) Enqueue(ctx context.Context, job J) error {
	if ctx == nil {
		ctx = p.ctx
	}
	select {
	case <-p.stop:
		return ErrStopped
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-p.stop:
		return ErrStopped
	case p.jobs <- job:
		return nil
	}
}

// Stop refuses further jobs. Jobs already queued are still started and
// running handlers keep their context. Safe to call more than once.
func (p *Pool[J]) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Wait returns after the pool has stopped (Stop or Ctx done) and every
// started job has returned.
func (p *Pool[J]) Wait() {
	p.wg.Wait()
}
