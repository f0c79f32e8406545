// Package execpool provides a reference Executor/Runtime/Topology
// implementation for the graph package: a fixed-size worker pool that
// accepts fire-and-forget work through graph.Executor, and a Run
// entry point that walks a graph.Graph to completion following the
// join-counter dispatch protocol graph.Node exposes.
//
// The core graph package never creates a goroutine on a submission's
// behalf outside of the parallel algorithm skeletons; execpool is
// where dispatch, the shared work queue, and topology lifecycle
// actually live.
package execpool

import (
	"context"
	stdruntime "runtime"
	"sync"

	"github.com/eapache/queue"
	"golang.org/x/sync/semaphore"
)

// Pool is a fixed-size worker pool implementing graph.Executor. Work
// submitted through SilentAsync is buffered in an eapache/queue.Queue
// guarded by a mutex/condvar (the accept path) and drained by
// NumWorkers() goroutines started at construction (the dispatch path).
// A semaphore.Weighted sized to the worker count admission-gates that
// dispatch path, bounding how many task bodies the ordinary worker
// loop runs concurrently. A worker helping drain the queue reentrantly
// while corun-ing a Subflow/Module wait (see runGraphSync) does not
// acquire a second permit: it is still one goroutine, not new
// concurrency.
type Pool struct {
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool

	admission *semaphore.Weighted

	wg sync.WaitGroup
}

// New starts a Pool with the given number of workers. A non-positive
// count defaults to runtime.NumCPU(), mirroring the fallback the
// worker-pool implementations in the reference corpus use.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = stdruntime.NumCPU()
	}
	p := &Pool{
		workers:   workers,
		q:         queue.New(),
		admission: semaphore.NewWeighted(int64(workers)),
	}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.q.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.q.Length() == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		fn := p.q.Remove().(func())
		p.mu.Unlock()

		p.dispatchOne(fn)
	}
}

// dispatchOne acquires an admission slot and runs fn, recovering a
// panic so one submitted task can never take down a worker goroutine.
// Only the ordinary worker loop calls this; a corun helper calls
// runSafely directly and takes no admission slot.
func (p *Pool) dispatchOne(fn func()) {
	if err := p.admission.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer p.admission.Release(1)
	p.runSafely(fn)
}

// runSafely invokes fn, recovering a panic so one submitted task can
// never take down a worker goroutine. The submitter is responsible
// for turning a recovered panic into a node exception; the pool
// itself has no node to attribute it to.
func (p *Pool) runSafely(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

// NumWorkers implements graph.Executor.
func (p *Pool) NumWorkers() int { return p.workers }

// SilentAsync implements graph.Executor. It enqueues fn for execution
// by one of the pool's worker goroutines. Calling SilentAsync after
// Close is a silent no-op, matching the fire-and-forget contract: the
// caller never observes whether fn ran.
func (p *Pool) SilentAsync(fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.q.Add(fn)
	p.mu.Unlock()
	p.cond.Signal()
}

// QueueDepth returns the number of tasks currently buffered, waiting
// for a worker. Exposed for metrics collection.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Length()
}

// Close stops accepting new work and blocks until every worker has
// drained the queue and exited. Submissions still in flight when
// Close is called are allowed to finish; Close does not cancel them.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
