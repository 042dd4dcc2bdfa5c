// Package parallel provides the goroutine pool that runs frame composition.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a fixed set of goroutines executing decode jobs.
//
// Each worker owns a queue and steals from its siblings when that queue is
// empty, so a slow composition (a long ancestor replay) does not hold up
// cheap ones queued behind it.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	// busy marks workers currently running a job. A job queued behind a
	// blocked worker only runs once someone steals it.
	busy []atomic.Bool

	// done signals workers to stop.
	done chan struct{}
	wg   sync.WaitGroup

	// mu orders submissions against Close: jobs are queued or counted in
	// inflight under the read lock, and Close stops the pool under the
	// write lock.
	mu      sync.RWMutex
	running atomic.Bool

	// overflow counts jobs handed to a helper goroutine because every queue
	// was full at submission time.
	overflow atomic.Int64
	// inflight counts blocking submissions not yet queued.
	inflight sync.WaitGroup
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// The pool starts immediately and workers begin waiting for work.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		busy:       make([]atomic.Bool, workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}

	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]

	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return

		case work := <-myQueue:
			p.run(id, work)

		default:
			if stolen := p.steal(id); stolen != nil {
				p.run(id, stolen)
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				p.run(id, work)
			}
		}
	}
}

func (p *WorkerPool) run(id int, work func()) {
	if work == nil {
		return
	}
	p.busy[id].Store(true)
	defer p.busy[id].Store(false)
	work()
}

// drainQueue executes all remaining work in a queue.
func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			if work != nil {
				work()
			}
		default:
			return
		}
	}
}

// steal attempts to take work from another worker's queue.
func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// shortestQueue returns the index of the least loaded worker queue, counting
// a running job as a full queue.
func (p *WorkerPool) shortestQueue() int {
	load := func(i int) int {
		n := len(p.workQueues[i])
		if p.busy[i].Load() {
			n += cap(p.workQueues[i])
		}
		return n
	}
	minLen := load(0)
	minIdx := 0
	for i := 1; i < p.workers; i++ {
		if l := load(i); l < minLen {
			minLen = l
			minIdx = i
		}
	}
	return minIdx
}

// Submit sends a single job to the worker with the shortest queue.
// It blocks while that queue is full. If the pool is closed, this is a no-op
// and Submit reports false.
func (p *WorkerPool) Submit(fn func()) bool {
	if fn == nil {
		return false
	}
	p.mu.RLock()
	if !p.running.Load() {
		p.mu.RUnlock()
		return false
	}
	p.inflight.Add(1)
	p.mu.RUnlock()

	defer p.inflight.Done()
	return p.send(fn)
}

// send blocks until fn is queued or the pool is closing.
func (p *WorkerPool) send(fn func()) bool {
	select {
	case p.workQueues[p.shortestQueue()] <- fn:
		return true
	case <-p.done:
		return false
	}
}

// TrySubmit queues fn without blocking. It reports false if the pool is
// closed or every queue is full.
func (p *WorkerPool) TrySubmit(fn func()) bool {
	if fn == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running.Load() && p.tryQueue(fn)
}

func (p *WorkerPool) tryQueue(fn func()) bool {
	start := p.shortestQueue()
	for i := range p.workers {
		select {
		case p.workQueues[(start+i)%p.workers] <- fn:
			return true
		default:
		}
	}
	return false
}

// Go queues fn and never blocks the caller. When every queue is full the
// job is handed to a helper goroutine that waits for room. It reports false
// only if the pool is closed.
func (p *WorkerPool) Go(fn func()) bool {
	if fn == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running.Load() {
		return false
	}
	if p.tryQueue(fn) {
		return true
	}
	p.overflow.Add(1)
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		if !p.send(fn) {
			// Closed while waiting: run inline so the job's completion
			// path still executes.
			fn()
		}
	}()
	return true
}

// Close stops accepting new work, runs everything already queued and then
// stops all workers. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
	p.inflight.Wait()

	// A helper may have won its send against a worker that had already
	// drained; run whatever is left here.
	for _, q := range p.workQueues {
		p.drainQueue(q)
	}
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// Overflowed returns how many jobs were handed to a helper goroutine by Go.
func (p *WorkerPool) Overflowed() int64 {
	return p.overflow.Load()
}
