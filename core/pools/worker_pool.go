// Package pools provides a bounded worker pool for CPU-heavy handler
// work. Handlers must not occupy their connection task with long
// computation; they hand it off here and wait on the result.
package pools

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// Task is one unit of offloaded work.
type Task func()

var (
	// ErrPoolClosed is returned by Submit after Close.
	ErrPoolClosed = errors.New("pools: worker pool is closed")

	// ErrQueueFull is returned by TrySubmit when the queue has no room.
	ErrQueueFull = errors.New("pools: task queue is full")
)

// WorkerPool runs tasks on a fixed set of goroutines fed from a single
// bounded queue.
type WorkerPool struct {
	tasks  chan Task
	wg     sync.WaitGroup
	closed atomic.Bool

	submitted atomic.Uint64
	completed atomic.Uint64
	rejected  atomic.Uint64
}

// NewWorkerPool starts workers goroutines with a queue of queueSize.
// Non-positive workers defaults to GOMAXPROCS; non-positive queueSize
// defaults to 16 tasks per worker.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if queueSize <= 0 {
		queueSize = workers * 16
	}

	p := &WorkerPool{tasks: make(chan Task, queueSize)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
		p.completed.Add(1)
	}
}

// Submit enqueues task, blocking while the queue is full.
func (p *WorkerPool) Submit(task Task) error {
	if p.closed.Load() {
		p.rejected.Add(1)
		return ErrPoolClosed
	}
	p.submitted.Add(1)
	p.tasks <- task
	return nil
}

// TrySubmit enqueues task without blocking.
func (p *WorkerPool) TrySubmit(task Task) error {
	if p.closed.Load() {
		p.rejected.Add(1)
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

// Run enqueues fn and blocks until it has executed, returning its
// result. This is the shape handlers use: offload, then wait.
func (p *WorkerPool) Run(fn func() error) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	done := make(chan error, 1)
	err := p.Submit(func() { done <- fn() })
	if err != nil {
		return err
	}
	return <-done
}

// Close stops intake and waits for queued tasks to finish.
func (p *WorkerPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.tasks)
	p.wg.Wait()
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Submitted uint64
	Completed uint64
	Rejected  uint64
	Queued    int
}

// Stats returns the current counters.
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Queued:    len(p.tasks),
	}
}
