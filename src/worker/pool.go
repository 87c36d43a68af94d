package worker

import (
	"context"
	"log"
	"sync"
)

// Job is one unit of stage work. It must honor ctx.
type Job func(ctx context.Context)

// Pool runs each submitted job on its own goroutine. Jobs are never queued
// behind one another or coalesced: two triggers in quick succession run two
// independent pipelines.
type Pool struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// New creates a pool whose jobs are cancelled when Close is called.
func New() *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{ctx: ctx, cancel: cancel}
}

// Submit starts job on a new goroutine. The job's context is cancelled
// when either ctx or the pool is done. Returns false once the pool is closed.
func (p *Pool) Submit(ctx context.Context, name string, job Job) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		log.Printf("Worker: pool closed, dropping %s", name)
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	jobCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.ctx, cancel)

	go func() {
		defer p.wg.Done()
		defer func() {
			stop()
			cancel()
		}()
		log.Printf("Worker: starting %s", name)
		job(jobCtx)
		log.Printf("Worker: finished %s", name)
	}()
	return true
}

// Close cancels in-flight jobs and waits for them to return.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
