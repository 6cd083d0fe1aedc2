package pipeline

import (
	"runtime"
	"sync"
)

// WorkerPool bounds how many pipeline invocations run at once during batch
// analysis. Each invocation is CPU-bound, so more workers than cores only
// adds contention.
type WorkerPool struct {
	workers   int
	jobQueue  chan func()
	startOnce sync.Once
	closeOnce sync.Once
}

// NewWorkerPool creates a pool with the given worker count, defaulting to
// the CPU count.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start launches the workers. Safe to call more than once.
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		for i := 0; i < wp.workers; i++ {
			go wp.worker()
		}
	})
}

func (wp *WorkerPool) worker() {
	for job := range wp.jobQueue {
		job()
	}
}

// Submit queues a job; blocks when all workers are busy and the queue is
// full, which is the intended backpressure for batch callers.
func (wp *WorkerPool) Submit(job func()) {
	wp.jobQueue <- job
}

// Close shuts the pool down. Pending jobs still drain.
func (wp *WorkerPool) Close() {
	wp.closeOnce.Do(func() {
		close(wp.jobQueue)
	})
}
