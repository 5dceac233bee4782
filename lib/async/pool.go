// Package async provides bounded worker pool utilities.
package async

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/coachpo/ctpgate/errs"
)

// Task represents a unit of work executed by the pool workers.
type Task func(context.Context) error

// Pool is a bounded worker pool. Submit fails fast when the queue is full,
// Enqueue waits for room.
type Pool struct {
	jobs    chan job
	onError func(error)

	mu     sync.RWMutex
	closed bool

	pending sync.WaitGroup
	workers sync.WaitGroup
}

type job struct {
	ctx context.Context
	fn  Task
}

// Option customises a Pool.
type Option func(*Pool)

// WithErrorHandler receives every task error and recovered panic.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Pool) { p.onError = fn }
}

// NewPool creates a worker pool with the given concurrency and queue depth.
func NewPool(workers, queue int, opts ...Option) (*Pool, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{jobs: make(chan job, queue)}
	for _, opt := range opts {
		opt(p)
	}
	p.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p, nil
}

// Submit schedules the task without waiting for queue space.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	return p.enqueue(ctx, fn, false)
}

// Enqueue schedules the task, waiting for queue space until ctx is done.
func (p *Pool) Enqueue(ctx context.Context, fn Task) error {
	return p.enqueue(ctx, fn, true)
}

func (p *Pool) enqueue(ctx context.Context, fn Task, wait bool) error {
	if fn == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submit context: %w", err)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	}
	p.pending.Add(1)
	j := job{ctx: ctx, fn: fn}
	if wait {
		select {
		case p.jobs <- j:
			return nil
		case <-ctx.Done():
			p.pending.Done()
			return fmt.Errorf("submit context: %w", ctx.Err())
		}
	}
	select {
	case p.jobs <- j:
		return nil
	default:
		p.pending.Done()
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool at capacity"))
	}
}

// Close stops accepting new tasks. Queued tasks still run.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.jobs)
}

// Shutdown closes the pool and waits for queued tasks to finish or ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		p.workers.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			p.report(fmt.Errorf("lib/async: task panic: %v", r))
		}
	}()
	if err := j.fn(j.ctx); err != nil {
		p.report(err)
	}
}

func (p *Pool) report(err error) {
	if p.onError != nil {
		p.onError(err)
	}
}

// KeyedPool runs tasks sharing a key in submission order. Keys are spread over
// single-worker lanes, so distinct keys may run concurrently.
type KeyedPool struct {
	lanes []*Pool
}

// NewKeyedPool creates lanes single-worker pools each with the given queue depth.
func NewKeyedPool(lanes, queue int, opts ...Option) (*KeyedPool, error) {
	if lanes <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("lanes must be >0"))
	}
	kp := &KeyedPool{lanes: make([]*Pool, lanes)}
	for i := range kp.lanes {
		lane, err := NewPool(1, queue, opts...)
		if err != nil {
			return nil, err
		}
		kp.lanes[i] = lane
	}
	return kp, nil
}

// Enqueue schedules fn on the lane owning key, waiting for room.
func (kp *KeyedPool) Enqueue(ctx context.Context, key string, fn Task) error {
	return kp.lanes[kp.lane(key)].Enqueue(ctx, fn)
}

func (kp *KeyedPool) lane(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(kp.lanes)))
}

// Shutdown drains every lane.
func (kp *KeyedPool) Shutdown(ctx context.Context) error {
	for _, lane := range kp.lanes {
		lane.Close()
	}
	for _, lane := range kp.lanes {
		if err := lane.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}
